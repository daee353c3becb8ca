package admin

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agromart/agromart/internal/audit"
	"github.com/agromart/agromart/internal/policy"
)

// Auditor records privileged actions after they commit. Dispatch must not
// block the caller on the audit store.
type Auditor interface {
	Dispatch(ctx context.Context, in audit.Input)
}

// RoleDirectory exposes the live role hierarchy.
type RoleDirectory interface {
	Snapshot() *policy.Engine
}

// Service runs the marketplace moderation operations. Authorization happens
// at the route; the service records every attempt that reaches it.
type Service struct {
	repo    RepositoryPort
	auditor Auditor
	roles   RoleDirectory
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, auditor Auditor, roles RoleDirectory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, auditor: auditor, roles: roles, logger: logger, now: time.Now}
}

// ApproveFarmer approves a pending farmer application.
func (s *Service) ApproveFarmer(ctx context.Context, origin audit.Input, id string, req ReviewRequest) error {
	err := s.repo.ReviewFarmer(ctx, id, ReviewApproved, req.Note, origin.Actor.ID)
	s.record(ctx, origin, audit.ActionFarmerApprove, audit.TargetFarmer, id, details("note", req.Note), err)
	return err
}

// RejectFarmer rejects a pending farmer application.
func (s *Service) RejectFarmer(ctx context.Context, origin audit.Input, id string, req RejectRequest) error {
	err := s.repo.ReviewFarmer(ctx, id, ReviewRejected, req.Reason, origin.Actor.ID)
	s.record(ctx, origin, audit.ActionFarmerReject, audit.TargetFarmer, id, details("reason", req.Reason), err)
	return err
}

// SuspendAccount suspends an active account.
func (s *Service) SuspendAccount(ctx context.Context, origin audit.Input, id string, req SuspendRequest) error {
	var err error
	if id == origin.Actor.ID {
		err = ErrSelfModification
	} else {
		err = s.repo.SetAccountStatus(ctx, id, AccountSuspended, req.Reason)
	}
	s.record(ctx, origin, audit.ActionAccountSuspend, audit.TargetUser, id, details("reason", req.Reason), err)
	return err
}

// ReactivateAccount lifts a suspension.
func (s *Service) ReactivateAccount(ctx context.Context, origin audit.Input, id string, req ReactivateRequest) error {
	err := s.repo.SetAccountStatus(ctx, id, AccountActive, req.Note)
	s.record(ctx, origin, audit.ActionAccountReactivate, audit.TargetUser, id, details("note", req.Note), err)
	return err
}

// ChangeRole assigns a declared role to a user.
func (s *Service) ChangeRole(ctx context.Context, origin audit.Input, id string, req RoleChangeRequest) error {
	role := policy.NormalizeRole(req.Role)
	info := map[string]any{"new_role": string(role)}

	var err error
	switch {
	case id == origin.Actor.ID:
		err = ErrSelfModification
	case !s.declared(role):
		err = ErrUnknownRole
	default:
		var previous policy.Role
		previous, err = s.repo.ChangeRole(ctx, id, role)
		if err == nil {
			info["previous_role"] = string(previous)
		}
	}
	s.record(ctx, origin, audit.ActionUserRoleChange, audit.TargetUser, id, info, err)
	return err
}

// CreateAnnouncement publishes a new announcement.
func (s *Service) CreateAnnouncement(ctx context.Context, origin audit.Input, req AnnouncementRequest) (Announcement, error) {
	a := Announcement{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		Body:      req.Body,
		Audience:  req.Audience,
		CreatedBy: origin.Actor.ID,
		CreatedAt: s.now().UTC(),
	}
	err := s.repo.CreateAnnouncement(ctx, a)
	s.record(ctx, origin, audit.ActionAnnouncementCreate, audit.TargetAnnouncement, a.ID,
		map[string]any{"title": a.Title, "audience": a.Audience}, err)
	if err != nil {
		return Announcement{}, err
	}
	return a, nil
}

// DeleteAnnouncement removes an announcement.
func (s *Service) DeleteAnnouncement(ctx context.Context, origin audit.Input, id string) error {
	removed, err := s.repo.DeleteAnnouncement(ctx, id)
	info := map[string]any{}
	if err == nil {
		info["title"] = removed.Title
	}
	s.record(ctx, origin, audit.ActionAnnouncementDelete, audit.TargetAnnouncement, id, info, err)
	return err
}

// ResolveDispute closes an open dispute with an outcome.
func (s *Service) ResolveDispute(ctx context.Context, origin audit.Input, id string, req DisputeResolution) error {
	err := s.repo.ResolveDispute(ctx, id, req.Outcome, req.Notes, origin.Actor.ID)
	info := map[string]any{"outcome": req.Outcome}
	if req.Notes != "" {
		info["notes"] = req.Notes
	}
	s.record(ctx, origin, audit.ActionDisputeResolve, audit.TargetDispute, id, info, err)
	return err
}

// ApproveProduct approves a pending product listing.
func (s *Service) ApproveProduct(ctx context.Context, origin audit.Input, id string, req ReviewRequest) error {
	err := s.repo.ReviewProduct(ctx, id, ReviewApproved, req.Note, origin.Actor.ID)
	s.record(ctx, origin, audit.ActionProductApprove, audit.TargetProduct, id, details("note", req.Note), err)
	return err
}

// RejectProduct rejects a pending product listing.
func (s *Service) RejectProduct(ctx context.Context, origin audit.Input, id string, req RejectRequest) error {
	err := s.repo.ReviewProduct(ctx, id, ReviewRejected, req.Reason, origin.Actor.ID)
	s.record(ctx, origin, audit.ActionProductReject, audit.TargetProduct, id, details("reason", req.Reason), err)
	return err
}

// IsBusinessError reports whether err is a rejection of the request rather
// than an infrastructure failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrUnknownRole) ||
		errors.Is(err, ErrSelfModification)
}

// record writes the audit entry for an attempt. Successful mutations and
// business rejections are recorded; infrastructure failures are only logged
// since nothing was attempted against a known state.
func (s *Service) record(ctx context.Context, origin audit.Input, action audit.Action, target audit.TargetType, id string, info map[string]any, err error) {
	in := origin
	in.Action = action
	in.TargetType = target
	in.TargetID = id
	in.Details = info
	in.Status = audit.StatusSuccess
	if err != nil {
		if !IsBusinessError(err) {
			s.logger.Error("admin operation failed",
				slog.String("action", string(action)),
				slog.String("target_id", id),
				slog.Any("error", err))
			return
		}
		in.Status = audit.StatusFailure
		if in.Details == nil {
			in.Details = map[string]any{}
		}
		in.Details["error"] = err.Error()
	}
	if s.auditor != nil {
		s.auditor.Dispatch(ctx, in)
	}
}

func (s *Service) declared(role policy.Role) bool {
	if s.roles == nil || role == "" {
		return false
	}
	engine := s.roles.Snapshot()
	return engine != nil && engine.Graph().Declared(role)
}

func details(key, value string) map[string]any {
	out := map[string]any{}
	if v := strings.TrimSpace(value); v != "" {
		out[key] = v
	}
	return out
}
