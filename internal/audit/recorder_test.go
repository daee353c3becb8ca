package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/shared"
)

type failingStore struct {
	err   error
	calls int
}

func (s *failingStore) Append(ctx context.Context, entry Entry) error {
	s.calls++
	return s.err
}

func (s *failingStore) Query(ctx context.Context, params QueryParams) ([]Entry, error) {
	return nil, s.err
}

type recordingRetrier struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (r *recordingRetrier) EnqueueAuditAppend(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

func (r *recordingRetrier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approveInput(actorID string) Input {
	return Input{
		Actor:      shared.Actor{ID: actorID, Role: policy.Role("farmer_support")},
		Action:     ActionFarmerApprove,
		TargetType: TargetFarmer,
		TargetID:   "farmer-17",
		Details:    map[string]any{"note": "documents verified"},
		IPAddress:  "203.0.113.9",
		UserAgent:  "curl/8.5",
		Status:     StatusSuccess,
	}
}

func TestRecordActionReturnsStoredEntry(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(RecorderConfig{Store: store, Logger: quietLogger()})
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	rec.now = func() time.Time { return fixed }

	entry := rec.RecordAction(context.Background(), approveInput("u-1"))

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, fixed.UTC(), entry.Timestamp)
	assert.Equal(t, time.UTC, entry.Timestamp.Location())
	assert.Equal(t, "farmer_support", entry.ActorRole)
	assert.Equal(t, 1, store.Len())

	stored, err := store.Query(context.Background(), QueryParams{ActorID: "u-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, entry.ID, stored[0].ID)
	assert.Equal(t, "documents verified", stored[0].Details["note"])
}

func TestQueryByActorMostRecentFirst(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(RecorderConfig{Store: store, Logger: quietLogger()})
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		rec.now = func() time.Time { return at }
		ids = append(ids, rec.RecordAction(context.Background(), approveInput("u-1")).ID)
	}
	rec.RecordAction(context.Background(), approveInput("u-2"))

	result, err := NewService(store).Query(context.Background(), Filters{ActorID: "u-1"})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, ids[2], result.Entries[0].ID)
	assert.Equal(t, ids[1], result.Entries[1].ID)
	assert.Equal(t, ids[0], result.Entries[2].ID)
}

func TestRecordActionSwallowsStorageFailure(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	retrier := &recordingRetrier{}
	rec := NewRecorder(RecorderConfig{Store: store, Retrier: retrier, Logger: quietLogger()})

	var entry Entry
	assert.NotPanics(t, func() {
		entry = rec.RecordAction(context.Background(), approveInput("u-1"))
	})
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, 1, store.calls)
	require.Equal(t, 1, retrier.count())
	assert.Equal(t, entry.ID, retrier.entries[0].ID)
}

func TestRecordActionSurvivesRetrierFailure(t *testing.T) {
	store := &failingStore{err: errors.New("timeout")}
	retrier := &recordingRetrier{err: errors.New("redis down")}
	rec := NewRecorder(RecorderConfig{Store: store, Retrier: retrier, Logger: quietLogger()})

	entry := rec.RecordAction(context.Background(), approveInput("u-1"))
	assert.Equal(t, ActionFarmerApprove, entry.Action)
	assert.Equal(t, 1, retrier.count())
}

func TestAppendReturnsStorageError(t *testing.T) {
	boom := errors.New("disk full")
	rec := NewRecorder(RecorderConfig{Store: &failingStore{err: boom}, Logger: quietLogger()})
	_, err := rec.Append(context.Background(), approveInput("u-1").entry())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestAppendRejectsInvalidEntries(t *testing.T) {
	rec := NewRecorder(RecorderConfig{Store: NewMemoryStore(), Logger: quietLogger()})

	in := approveInput("u-1")
	in.Action = Action("farmer.delete")
	_, err := rec.Append(context.Background(), in.entry())
	assert.ErrorIs(t, err, ErrInvalidEntry)

	in = approveInput("")
	_, err = rec.Append(context.Background(), in.entry())
	assert.ErrorIs(t, err, ErrInvalidEntry)

	in = approveInput("u-1")
	in.TargetType = TargetType("warehouse")
	_, err = rec.Append(context.Background(), in.entry())
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestInvalidEntryIsNotRetried(t *testing.T) {
	retrier := &recordingRetrier{}
	rec := NewRecorder(RecorderConfig{Store: NewMemoryStore(), Retrier: retrier, Logger: quietLogger()})
	in := approveInput("u-1")
	in.Action = ""
	rec.RecordAction(context.Background(), in)
	assert.Zero(t, retrier.count())
}

func TestAppendIgnoresCallerCancellation(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(RecorderConfig{Store: store, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.Append(ctx, approveInput("u-1").entry())
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestAppendNormalisesFields(t *testing.T) {
	rec := NewRecorder(RecorderConfig{Store: NewMemoryStore(), Logger: quietLogger()})
	in := approveInput("u-1")
	in.IPAddress = "198.51.100.4:52311"
	in.UserAgent = strings.Repeat("a", 600)
	in.Status = ""

	entry, err := rec.Append(context.Background(), in.entry())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.4", entry.IPAddress)
	assert.Len(t, entry.UserAgent, maxUserAgentLength)
	assert.Equal(t, StatusSuccess, entry.Status)
}

func TestAppendClampsClientMetadata(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(RecorderConfig{Store: store, Logger: quietLogger()})
	in := approveInput("u-1")
	in.UserAgent = strings.Repeat("a", 511) + "é"
	in.Location = strings.Repeat("ü", 300)
	in.TargetID = strings.Repeat("f", 200)

	entry, err := rec.Append(context.Background(), in.entry())
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.True(t, utf8.ValidString(entry.UserAgent))
	assert.Equal(t, maxUserAgentLength, utf8.RuneCountInString(entry.UserAgent))
	assert.True(t, strings.HasSuffix(entry.UserAgent, "é"))
	assert.Equal(t, maxLocationLength, utf8.RuneCountInString(entry.Location))
	assert.Len(t, entry.TargetID, maxTargetIDLength)
}

func TestClampText(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "short", in: "Nairobi", limit: 10, want: "Nairobi"},
		{name: "exact", in: "abc", limit: 3, want: "abc"},
		{name: "ascii cut", in: "abcdef", limit: 4, want: "abcd"},
		{name: "multibyte cut", in: "ééé", limit: 2, want: "éé"},
		{name: "invalid bytes", in: "ok\xffok", limit: 10, want: "ok�ok"},
		{name: "empty", in: "", limit: 5, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := clampText(tc.in, tc.limit)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestAppendDuplicateCountsAsStored(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(RecorderConfig{Store: store, Logger: quietLogger()})
	entry, err := rec.Append(context.Background(), approveInput("u-1").entry())
	require.NoError(t, err)

	again, err := rec.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)
	assert.Equal(t, 1, store.Len())
}

func TestDispatchDrainsOnClose(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(RecorderConfig{Store: store, Logger: quietLogger(), BufferSize: 8})
	for i := 0; i < 5; i++ {
		rec.Dispatch(context.Background(), approveInput("u-1"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))
	assert.Equal(t, 5, store.Len())
}

func TestDispatchAfterCloseFallsBackToRetrier(t *testing.T) {
	retrier := &recordingRetrier{}
	rec := NewRecorder(RecorderConfig{Store: NewMemoryStore(), Retrier: retrier, Logger: quietLogger()})
	require.NoError(t, rec.Close(context.Background()))
	require.NoError(t, rec.Close(context.Background()))

	rec.Dispatch(context.Background(), approveInput("u-1"))
	assert.Equal(t, 1, retrier.count())
}

func TestInputWithRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/admin/farmers/7/approve", nil)
	req.RemoteAddr = "192.0.2.10:41000"
	req.Header.Set("User-Agent", "agromart-admin/1.2")
	req.Header.Set(LocationHeader, " Nairobi, KE ")

	in := approveInput("u-1").WithRequest(req)
	assert.Equal(t, "192.0.2.10", in.IPAddress)
	assert.Equal(t, "agromart-admin/1.2", in.UserAgent)
	assert.Equal(t, "Nairobi, KE", in.Location)
}
