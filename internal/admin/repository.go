package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agromart/agromart/internal/platform/db"
	"github.com/agromart/agromart/internal/policy"
)

// RepositoryPort defines the mutations behind the admin operations. Each call
// commits before returning.
type RepositoryPort interface {
	ReviewFarmer(ctx context.Context, id string, status ReviewStatus, note, reviewer string) error
	SetAccountStatus(ctx context.Context, id string, status AccountStatus, note string) error
	ChangeRole(ctx context.Context, id string, role policy.Role) (policy.Role, error)
	CreateAnnouncement(ctx context.Context, a Announcement) error
	DeleteAnnouncement(ctx context.Context, id string) (Announcement, error)
	ResolveDispute(ctx context.Context, id, outcome, notes, resolver string) error
	ReviewProduct(ctx context.Context, id string, status ReviewStatus, note, reviewer string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReviewFarmer moves a pending farmer application to approved or rejected.
func (r *Repository) ReviewFarmer(ctx context.Context, id string, status ReviewStatus, note, reviewer string) error {
	return r.review(ctx, "farmers", id, status, note, reviewer)
}

// ReviewProduct moves a pending product listing to approved or rejected.
func (r *Repository) ReviewProduct(ctx context.Context, id string, status ReviewStatus, note, reviewer string) error {
	return r.review(ctx, "products", id, status, note, reviewer)
}

func (r *Repository) review(ctx context.Context, table, id string, status ReviewStatus, note, reviewer string) error {
	sql := fmt.Sprintf(`UPDATE %s SET status = $2, review_note = $3, reviewed_by = $4, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'`, table)
	tag, err := r.pool.Exec(ctx, sql, id, string(status), optionalText(note), reviewer)
	if err != nil {
		return fmt.Errorf("admin: review %s: %w", table, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.classifyMiss(ctx, table, id)
}

// SetAccountStatus suspends an active account or reactivates a suspended one.
func (r *Repository) SetAccountStatus(ctx context.Context, id string, status AccountStatus, note string) error {
	from := AccountActive
	if status == AccountActive {
		from = AccountSuspended
	}
	tag, err := r.pool.Exec(ctx, `UPDATE users SET status = $2, status_note = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`, id, string(status), optionalText(note), string(from))
	if err != nil {
		return fmt.Errorf("admin: set account status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.classifyMiss(ctx, "users", id)
}

// ChangeRole assigns a new role and returns the previous one.
func (r *Repository) ChangeRole(ctx context.Context, id string, role policy.Role) (policy.Role, error) {
	var previous string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&previous); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("admin: lock user: %w", err)
		}
		if policy.Role(previous) == role {
			return ErrInvalidState
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role)); err != nil {
			return fmt.Errorf("admin: update role: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return policy.Role(previous), nil
}

// CreateAnnouncement stores a new announcement.
func (r *Repository) CreateAnnouncement(ctx context.Context, a Announcement) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO announcements (id, title, body, audience, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, a.ID, a.Title, a.Body, a.Audience, a.CreatedBy, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("admin: insert announcement: %w", err)
	}
	return nil
}

// DeleteAnnouncement removes an announcement and returns what was removed.
func (r *Repository) DeleteAnnouncement(ctx context.Context, id string) (Announcement, error) {
	var a Announcement
	err := r.pool.QueryRow(ctx, `DELETE FROM announcements WHERE id = $1
		RETURNING id, title, body, audience, created_by, created_at`, id).
		Scan(&a.ID, &a.Title, &a.Body, &a.Audience, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Announcement{}, ErrNotFound
		}
		return Announcement{}, fmt.Errorf("admin: delete announcement: %w", err)
	}
	return a, nil
}

// ResolveDispute closes an open dispute.
func (r *Repository) ResolveDispute(ctx context.Context, id, outcome, notes, resolver string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE disputes SET status = 'resolved', outcome = $2, notes = $3,
		resolved_by = $4, resolved_at = NOW() WHERE id = $1 AND status = 'open'`, id, outcome, optionalText(notes), resolver)
	if err != nil {
		return fmt.Errorf("admin: resolve dispute: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.classifyMiss(ctx, "disputes", id)
}

// classifyMiss distinguishes a missing row from one in the wrong state after
// a guarded UPDATE touched nothing.
func (r *Repository) classifyMiss(ctx context.Context, table, id string) error {
	var exists bool
	sql := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := r.pool.QueryRow(ctx, sql, id).Scan(&exists); err != nil {
		return fmt.Errorf("admin: lookup %s: %w", table, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
