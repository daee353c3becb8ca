package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/agromart/agromart/internal/observability"
	"github.com/agromart/agromart/internal/shared"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultBufferSize   = 256
	maxUserAgentLength  = 512
	maxLocationLength   = 255
	maxTargetIDLength   = 128
)

// Write outcomes reported to metrics.
const (
	resultStored  = "stored"
	resultFailed  = "failed"
	resultQueued  = "queued"
	resultDropped = "dropped"
)

// Retrier hands a failed entry to an out-of-band writer.
type Retrier interface {
	EnqueueAuditAppend(ctx context.Context, entry Entry) error
}

// Input is the caller-supplied part of an entry.
type Input struct {
	Actor      shared.Actor
	Action     Action
	TargetType TargetType
	TargetID   string
	Details    map[string]any
	IPAddress  string
	UserAgent  string
	Location   string
	Status     Status
}

// RecorderConfig wires a Recorder.
type RecorderConfig struct {
	Store        Store
	Retrier      Retrier
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	WriteTimeout time.Duration
	BufferSize   int
}

// Recorder appends audit entries. Writes never roll back or fail the business
// operation that triggered them.
type Recorder struct {
	store    Store
	retrier  Retrier
	logger   *slog.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
	validate *validator.Validate
	now      func() time.Time

	mu      sync.RWMutex
	closed  bool
	queue   chan Entry
	started sync.Once
	done    chan struct{}
}

// NewRecorder builds a recorder. The background writer used by Dispatch starts
// lazily on first use.
func NewRecorder(cfg RecorderConfig) *Recorder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Recorder{
		store:    cfg.Store,
		retrier:  cfg.Retrier,
		logger:   logger.With(slog.String("component", "audit")),
		metrics:  cfg.Metrics,
		timeout:  timeout,
		validate: newValidator(),
		now:      time.Now,
		queue:    make(chan Entry, size),
		done:     make(chan struct{}),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("audit_action", func(fl validator.FieldLevel) bool {
		return Action(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("audit_target", func(fl validator.FieldLevel) bool {
		return TargetType(fl.Field().String()).Valid()
	})
	return v
}

// Append stamps, validates and stores the entry. The write runs on a context
// detached from the caller's cancellation, bounded by the write timeout.
func (r *Recorder) Append(ctx context.Context, entry Entry) (Entry, error) {
	if r.store == nil {
		return entry, ErrStoreNotConfigured
	}
	entry = r.stamp(entry)
	if err := r.validate.Struct(entry); err != nil {
		return entry, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := r.write(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// RecordAction records a privileged action and returns the entry as stored
// (or as attempted). It never reports failure to the caller.
func (r *Recorder) RecordAction(ctx context.Context, in Input) Entry {
	entry, err := r.Append(ctx, in.entry())
	if err == nil {
		r.metrics.ObserveAuditWrite(resultStored)
		return entry
	}
	r.handleFailure(ctx, entry, err)
	return entry
}

// Dispatch queues the action for the background writer and returns
// immediately. A full buffer falls through to the retrier.
func (r *Recorder) Dispatch(ctx context.Context, in Input) {
	entry := r.stamp(in.entry())
	if err := r.validate.Struct(entry); err != nil {
		r.handleFailure(ctx, entry, fmt.Errorf("%w: %v", ErrInvalidEntry, err))
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.handleFailure(ctx, entry, ErrRecorderClosed)
		return
	}
	r.started.Do(func() { go r.drain() })
	select {
	case r.queue <- entry:
	default:
		r.handleFailure(ctx, entry, ErrBufferFull)
	}
}

// Close stops accepting dispatched entries and waits for the buffer to drain
// or ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.started.Do(func() { go r.drain() })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) drain() {
	defer close(r.done)
	for entry := range r.queue {
		if err := r.write(context.Background(), entry); err != nil {
			r.handleFailure(context.Background(), entry, err)
			continue
		}
		r.metrics.ObserveAuditWrite(resultStored)
	}
}

func (r *Recorder) write(ctx context.Context, entry Entry) error {
	if r.store == nil {
		return ErrStoreNotConfigured
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.Append(writeCtx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return nil
		}
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *Recorder) handleFailure(ctx context.Context, entry Entry, err error) {
	r.metrics.ObserveAuditWrite(resultFailed)
	r.logger.Error("audit write failed",
		slog.String("entry_id", entry.ID.String()),
		slog.String("action", string(entry.Action)),
		slog.String("actor_id", entry.ActorID),
		slog.Any("error", err),
	)
	if errors.Is(err, ErrInvalidEntry) || errors.Is(err, ErrStoreNotConfigured) || r.retrier == nil {
		r.metrics.ObserveAuditWrite(resultDropped)
		return
	}
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if qerr := r.retrier.EnqueueAuditAppend(enqueueCtx, entry); qerr != nil {
		r.metrics.ObserveAuditWrite(resultDropped)
		r.logger.Error("audit retry enqueue failed",
			slog.String("entry_id", entry.ID.String()),
			slog.Any("error", qerr),
		)
		return
	}
	r.metrics.ObserveAuditWrite(resultQueued)
}

func (r *Recorder) stamp(entry Entry) Entry {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}
	entry.TargetID = clampText(entry.TargetID, maxTargetIDLength)
	entry.UserAgent = clampText(entry.UserAgent, maxUserAgentLength)
	entry.Location = clampText(entry.Location, maxLocationLength)
	entry.IPAddress = normalizeIP(entry.IPAddress)
	entry.Details = cloneDetails(entry.Details)
	return entry
}

func (in Input) entry() Entry {
	return Entry{
		ActorID:    in.Actor.ID,
		ActorRole:  string(in.Actor.Role),
		Action:     in.Action,
		TargetType: in.TargetType,
		TargetID:   strings.TrimSpace(in.TargetID),
		Details:    in.Details,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		Location:   strings.TrimSpace(in.Location),
		Status:     in.Status,
	}
}

// clampText makes client-supplied text storable: invalid UTF-8 is replaced
// and the result is cut to at most limit runes.
func clampText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func normalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || net.ParseIP(raw) != nil {
		return raw
	}
	if host, _, err := net.SplitHostPort(raw); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return ""
}
