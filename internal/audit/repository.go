package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertEntrySQL = `INSERT INTO audit_entries
	(id, actor_id, actor_role, action, target_type, target_id, details, ip_address, user_agent, location, status, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const queryEntriesSQL = `SELECT id, actor_id, actor_role, action, target_type, COALESCE(target_id, ''), details,
	ip_address, user_agent, COALESCE(location, ''), status, occurred_at
	FROM audit_entries
	WHERE ($1::text IS NULL OR actor_id = $1)
	  AND ($2::text IS NULL OR action = $2)
	  AND ($3::text IS NULL OR target_type = $3)
	  AND ($4::timestamptz IS NULL OR occurred_at >= $4)
	  AND ($5::timestamptz IS NULL OR occurred_at < $5)
	ORDER BY occurred_at DESC, id DESC
	OFFSET $6 LIMIT $7`

// Repository is the PostgreSQL store backed by the audit_entries table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts the entry. A unique violation on the ID maps to ErrDuplicateEntry.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	if r == nil || r.pool == nil {
		return ErrStoreNotConfigured
	}
	details, err := json.Marshal(cloneDetails(entry.Details))
	if err != nil {
		return fmt.Errorf("audit: encode details: %w", err)
	}
	_, err = r.pool.Exec(ctx, insertEntrySQL,
		pgtype.UUID{Bytes: entry.ID, Valid: true},
		entry.ActorID,
		entry.ActorRole,
		string(entry.Action),
		string(entry.TargetType),
		optionalText(entry.TargetID),
		details,
		entry.IPAddress,
		entry.UserAgent,
		optionalText(entry.Location),
		string(entry.Status),
		entry.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Query returns matching entries ordered most recent first.
func (r *Repository) Query(ctx context.Context, params QueryParams) ([]Entry, error) {
	if r == nil || r.pool == nil {
		return nil, ErrStoreNotConfigured
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx, queryEntriesSQL,
		optionalText(params.ActorID),
		optionalText(string(params.Action)),
		optionalText(string(params.TargetType)),
		toPgTime(params.From),
		toPgTime(params.To),
		params.Offset,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id         pgtype.UUID
			e          Entry
			action     string
			targetType string
			status     string
			details    []byte
		)
		if err := rows.Scan(&id, &e.ActorID, &e.ActorRole, &action, &targetType, &e.TargetID, &details,
			&e.IPAddress, &e.UserAgent, &e.Location, &status, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.ID = uuid.UUID(id.Bytes)
		e.Action = Action(action)
		e.TargetType = TargetType(targetType)
		e.Status = Status(status)
		e.Timestamp = e.Timestamp.UTC()
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("audit: decode details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
