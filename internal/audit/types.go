package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action is the closed set of privileged action kinds that are audited.
type Action string

const (
	ActionFarmerApprove      Action = "farmer.approve"
	ActionFarmerReject       Action = "farmer.reject"
	ActionAccountSuspend     Action = "account.suspend"
	ActionAccountReactivate  Action = "account.reactivate"
	ActionAnnouncementCreate Action = "announcement.create"
	ActionAnnouncementDelete Action = "announcement.delete"
	ActionDisputeResolve     Action = "dispute.resolve"
	ActionProductApprove     Action = "product.approve"
	ActionProductReject      Action = "product.reject"
	ActionUserRoleChange     Action = "user.role_change"
	ActionPolicyReload       Action = "policy.reload"
)

var knownActions = map[Action]struct{}{
	ActionFarmerApprove:      {},
	ActionFarmerReject:       {},
	ActionAccountSuspend:     {},
	ActionAccountReactivate:  {},
	ActionAnnouncementCreate: {},
	ActionAnnouncementDelete: {},
	ActionDisputeResolve:     {},
	ActionProductApprove:     {},
	ActionProductReject:      {},
	ActionUserRoleChange:     {},
	ActionPolicyReload:       {},
}

// Valid reports whether the action belongs to the closed set.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// TargetType names the kind of entity an action touched.
type TargetType string

const (
	TargetFarmer       TargetType = "farmer"
	TargetUser         TargetType = "user"
	TargetAnnouncement TargetType = "announcement"
	TargetDispute      TargetType = "dispute"
	TargetProduct      TargetType = "product"
	TargetPolicy       TargetType = "policy"
)

// Valid reports whether the target type is known.
func (t TargetType) Valid() bool {
	switch t {
	case TargetFarmer, TargetUser, TargetAnnouncement, TargetDispute, TargetProduct, TargetPolicy:
		return true
	}
	return false
}

// Status is the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Entry is an immutable record of a completed privileged action. ID and
// Timestamp are assigned by the recorder.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    string         `json:"actor_id" validate:"required,max=128"`
	ActorRole  string         `json:"actor_role" validate:"required,max=64"`
	Action     Action         `json:"action" validate:"required,audit_action"`
	TargetType TargetType     `json:"target_type" validate:"required,audit_target"`
	TargetID   string         `json:"target_id,omitempty"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address" validate:"omitempty,ip"`
	UserAgent  string         `json:"user_agent"`
	Location   string         `json:"location,omitempty"`
	Status     Status         `json:"status" validate:"required,oneof=success failure"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Filters narrows an operator query. Zero values mean "no filter".
type Filters struct {
	ActorID    string
	Action     Action
	TargetType TargetType
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// QueryParams is the store-level form of Filters.
type QueryParams struct {
	ActorID    string
	Action     Action
	TargetType TargetType
	From       time.Time
	To         time.Time
	Offset     int
	Limit      int
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a page of entries.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}

func cloneDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
