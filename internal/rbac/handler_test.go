package rbac_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromart/agromart/internal/audit"
	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/rbac"
)

type stubReloader struct {
	store *policy.Store
	err   error
	calls int
}

func (s *stubReloader) Trigger(ctx context.Context) (*policy.Engine, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	engine := s.store.Snapshot()
	s.store.Swap(engine)
	return engine, nil
}

type capturingAuditor struct {
	inputs []audit.Input
}

func (c *capturingAuditor) RecordAction(ctx context.Context, in audit.Input) audit.Entry {
	c.inputs = append(c.inputs, in)
	return audit.Entry{Action: in.Action}
}

func policyRouter(t *testing.T, reloader rbac.Reloader, auditor rbac.Auditor, notify rbac.Notifier) (chi.Router, *policy.Store) {
	t.Helper()
	gate, store := newGate(t)
	if r, ok := reloader.(*stubReloader); ok {
		r.store = store
	}
	router := chi.NewRouter()
	rbac.NewHandler(nil, gate, store, reloader, auditor, notify).MountRoutes(router)
	return router, store
}

func TestListRolesRequiresPolicyView(t *testing.T) {
	router, _ := policyRouter(t, nil, nil, nil)

	rr, _ := serve(router, withActor(httptest.NewRequest(http.MethodGet, "/policy/roles", nil), "u", "farmer_support"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, body := serve(router, withActor(httptest.NewRequest(http.MethodGet, "/policy/roles", nil), "u", "admin"))
	require.Equal(t, http.StatusOK, rr.Code)
	roles, ok := body["roles"].([]any)
	require.True(t, ok)
	assert.Len(t, roles, 9)
}

func TestListPermissions(t *testing.T) {
	router, store := policyRouter(t, nil, nil, nil)

	rr, body := serve(router, withActor(httptest.NewRequest(http.MethodGet, "/policy/permissions", nil), "u", "admin"))
	require.Equal(t, http.StatusOK, rr.Code)
	perms, ok := body["permissions"].([]any)
	require.True(t, ok)
	assert.Len(t, perms, len(store.Snapshot().Catalog().Permissions()))
}

func TestMeListsHeldPermissions(t *testing.T) {
	router, _ := policyRouter(t, nil, nil, nil)

	rr, _ := serve(router, httptest.NewRequest(http.MethodGet, "/policy/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, body := serve(router, withActor(httptest.NewRequest(http.MethodGet, "/policy/me", nil), "u-5", "pricing_manager"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pricing_manager", body["role"])
	assert.ElementsMatch(t, []any{"pricing:update"}, body["permissions"])
	assert.ElementsMatch(t, []any{"pricing_manager"}, body["closure"])
}

func TestReloadIsAudited(t *testing.T) {
	reloader := &stubReloader{}
	auditor := &capturingAuditor{}
	var notified []string
	notify := func(ctx context.Context, reason string) error {
		notified = append(notified, reason)
		return nil
	}
	router, store := policyRouter(t, reloader, auditor, notify)

	req := withActor(httptest.NewRequest(http.MethodPost, "/policy/reload", nil), "admin-1", "admin")
	rr, body := serve(router, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, uint64(2), store.Version())
	assert.Equal(t, 1, reloader.calls)
	assert.Equal(t, []string{"reload by admin-1"}, notified)

	require.Len(t, auditor.inputs, 1)
	in := auditor.inputs[0]
	assert.Equal(t, audit.ActionPolicyReload, in.Action)
	assert.Equal(t, audit.TargetPolicy, in.TargetType)
	assert.Equal(t, audit.StatusSuccess, in.Status)
	assert.Equal(t, "admin-1", in.Actor.ID)
	assert.Equal(t, "2", in.TargetID)
}

func TestReloadFailureRecordsFailureEntry(t *testing.T) {
	reloader := &stubReloader{err: errors.New("policy: cyclic hierarchy")}
	auditor := &capturingAuditor{}
	router, store := policyRouter(t, reloader, auditor, nil)

	rr, _ := serve(router, withActor(httptest.NewRequest(http.MethodPost, "/policy/reload", nil), "admin-1", "admin"))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, uint64(1), store.Version())
	require.Len(t, auditor.inputs, 1)
	assert.Equal(t, audit.StatusFailure, auditor.inputs[0].Status)
	assert.Equal(t, "policy: cyclic hierarchy", auditor.inputs[0].Details["error"])
}

func TestReloadDeniedForStaff(t *testing.T) {
	reloader := &stubReloader{}
	router, _ := policyRouter(t, reloader, nil, nil)

	rr, _ := serve(router, withActor(httptest.NewRequest(http.MethodPost, "/policy/reload", nil), "u", "analytics_manager"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, reloader.calls)
}
