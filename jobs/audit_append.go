package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/agromart/agromart/internal/audit"
	jobmetrics "github.com/agromart/agromart/internal/jobs"
	"github.com/agromart/agromart/internal/policy"
)

// AuditAppendJob writes entries that could not be stored on the request path.
type AuditAppendJob struct {
	Store   audit.Store
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditAppendJob initialises the audit retry handler.
func NewAuditAppendJob(store audit.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditAppendJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditAppendJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle appends the entry. An entry already present counts as success, so
// redelivery is harmless.
func (j *AuditAppendJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit append: handler not configured")
	}
	var payload AuditAppendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.Logger.Error("audit append: malformed payload", slog.Any("error", err))
		return fmt.Errorf("audit append: decode: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAuditAppend)
	err := j.Store.Append(ctx, payload.Entry)
	if errors.Is(err, audit.ErrDuplicateEntry) {
		err = nil
	}
	if err != nil {
		j.Logger.Warn("audit append: retry failed",
			slog.String("entry_id", payload.Entry.ID.String()),
			slog.Any("error", err))
		return tracker.End(fmt.Errorf("audit append: %w", err))
	}
	j.Logger.Info("audit append: entry stored", slog.String("entry_id", payload.Entry.ID.String()))
	return tracker.End(nil)
}

// PolicyReloadJob publishes a reload request on the policy channel.
type PolicyReloadJob struct {
	Client  *redis.Client
	Channel string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle publishes the reload broadcast.
func (j *PolicyReloadJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PolicyReloadPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("policy reload: decode: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskPolicyReload)
	if err := policy.Publish(ctx, j.Client, j.Channel, payload.Reason); err != nil {
		return tracker.End(fmt.Errorf("policy reload: publish: %w", err))
	}
	if j.Logger != nil {
		j.Logger.Info("policy reload broadcast", slog.String("reason", payload.Reason))
	}
	return tracker.End(nil)
}
