package admin

import (
	"fmt"
	"time"

	"github.com/agromart/agromart/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the target record does not exist.
	ErrNotFound = fmt.Errorf("admin: %w", httpx.ErrNotFound)
	// ErrInvalidState indicates the target is not in a state that allows the change.
	ErrInvalidState = fmt.Errorf("admin: invalid state transition: %w", httpx.ErrConflict)
	// ErrUnknownRole indicates a role change to a role the policy does not declare.
	ErrUnknownRole = fmt.Errorf("admin: unknown role: %w", httpx.ErrValidation)
	// ErrSelfModification indicates an operator acting on their own account.
	ErrSelfModification = fmt.Errorf("admin: operators cannot modify their own account: %w", httpx.ErrConflict)
)

// ReviewStatus is the moderation state of farmers and products.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// AccountStatus is the state of a user account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// ReviewRequest carries an optional note for an approval.
type ReviewRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// RejectRequest requires a reason shown to the submitter.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SuspendRequest requires a reason kept on the account.
type SuspendRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ReactivateRequest carries an optional note.
type ReactivateRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// RoleChangeRequest names the new role.
type RoleChangeRequest struct {
	Role string `json:"role" validate:"required,max=64"`
}

// AnnouncementRequest is the payload for a platform announcement.
type AnnouncementRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Body     string `json:"body" validate:"required,max=5000"`
	Audience string `json:"audience" validate:"required,oneof=all farmers buyers staff"`
}

// DisputeResolution closes a buyer/farmer dispute.
type DisputeResolution struct {
	Outcome string `json:"outcome" validate:"required,oneof=refund_buyer release_to_farmer partial_refund"`
	Notes   string `json:"notes" validate:"max=2000"`
}

// Announcement is a broadcast message to marketplace users.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Audience  string    `json:"audience"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
