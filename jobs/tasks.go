package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/agromart/agromart/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit entries whose first write failed.
	QueueAudit = "audit"
	// TaskAuditAppend re-appends a single audit entry.
	TaskAuditAppend = "audit:append"
	// TaskPolicyReload broadcasts a policy reload to every API instance.
	TaskPolicyReload = "policy:reload"

	auditMaxRetry = 10
	auditRetain   = 24 * time.Hour
)

// AuditAppendPayload wraps the entry to append.
type AuditAppendPayload struct {
	Entry audit.Entry `json:"entry"`
}

// NewAuditAppendTask builds the retry task. The task ID is the entry ID so a
// second enqueue of the same entry is rejected by the broker.
func NewAuditAppendTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(AuditAppendPayload{Entry: entry})
	if err != nil {
		return nil, fmt.Errorf("jobs: encode audit entry: %w", err)
	}
	return asynq.NewTask(TaskAuditAppend, data,
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(auditMaxRetry),
		asynq.TaskID(entry.ID.String()),
		asynq.Retention(auditRetain),
	), nil
}

// PolicyReloadPayload names why the reload was requested.
type PolicyReloadPayload struct {
	Reason string `json:"reason"`
}

// NewPolicyReloadTask builds the scheduled reload broadcast.
func NewPolicyReloadTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(PolicyReloadPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPolicyReload, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
