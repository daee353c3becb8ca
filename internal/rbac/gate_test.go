package rbac_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromart/agromart/internal/observability"
	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/rbac"
	"github.com/agromart/agromart/internal/shared"
)

func newGate(t *testing.T) (*rbac.Gate, *policy.Store) {
	t.Helper()
	engine, err := policy.Default()
	require.NoError(t, err)
	store, err := policy.NewStore(engine)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return rbac.NewGate(store, logger, observability.NewMetrics()), store
}

func withActor(r *http.Request, id string, role policy.Role) *http.Request {
	return r.WithContext(shared.ContextWithActor(r.Context(), shared.Actor{ID: id, Role: role}))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, r *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	return rr, body
}

func TestRequireRoleAllowsInheritedRole(t *testing.T) {
	gate, _ := newGate(t)
	h := gate.RequireRole("admin", "farmer_support")(okHandler)

	rr, _ := serve(h, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "u-2", "farmer_support"))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr, _ = serve(h, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "u-1", "admin"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequireRoleDeniesWithRefusalBody(t *testing.T) {
	gate, _ := newGate(t)
	called := false
	h := gate.RequireRole("admin", "farmer_support")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rr, body := serve(h, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "u-9", "buyer"))
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{
		"success": false,
		"message": "Access denied: insufficient permissions",
		"required": ["admin", "farmer_support"],
		"current": "buyer"
	}`, rr.Body.String())
	assert.Equal(t, false, body["success"])
}

func TestRequireRoleWithoutActorIsUnauthenticated(t *testing.T) {
	gate, _ := newGate(t)
	h := gate.RequireRole("admin")(okHandler)

	rr, _ := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"success":false,"message":"Authentication required"}`, rr.Body.String())
}

func TestRequirePermissionUndefinedKeyIsServerFault(t *testing.T) {
	gate, _ := newGate(t)
	h := gate.RequirePermission("system:backup")(okHandler)

	rr, _ := serve(h, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "u-1", "admin"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"success":false,"message":"Permission not defined"}`, rr.Body.String())
}

func TestRequirePermissionByCatalog(t *testing.T) {
	gate, _ := newGate(t)
	h := gate.RequirePermission("product:approve")(okHandler)

	for role, want := range map[policy.Role]int{
		"admin":           http.StatusNoContent,
		"produce_manager": http.StatusNoContent,
		"farmer_support":  http.StatusForbidden,
		"super_admin":     http.StatusForbidden,
	} {
		rr, _ := serve(h, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "u", role))
		assert.Equal(t, want, rr.Code, "role %s", role)
	}

	rr, _ := serve(h, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "u", "farmer_support"))
	assert.JSONEq(t, `{
		"success": false,
		"message": "Access denied: insufficient permissions",
		"required": ["product:approve"],
		"current": "farmer_support"
	}`, rr.Body.String())
}

func TestCheckErrors(t *testing.T) {
	gate, _ := newGate(t)
	ctx := context.Background()

	_, err := gate.Check(ctx, policy.AnyRole("admin"))
	assert.ErrorIs(t, err, rbac.ErrUnauthenticated)

	ctx = shared.ContextWithActor(ctx, shared.Actor{ID: "u-3", Role: "buyer"})
	decision, err := gate.Check(ctx, policy.AnyRole("admin"))
	assert.False(t, decision.Allowed)
	assert.ErrorIs(t, err, rbac.ErrUnauthorized)
	var denied *rbac.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, policy.Role("buyer"), denied.Current)

	_, err = gate.Check(ctx, policy.RequirePermission("system:backup"))
	assert.ErrorIs(t, err, policy.ErrPermissionNotDefined)
	assert.True(t, policy.IsConfigFault(err))

	_, err = gate.Check(ctx, policy.AnyRole())
	assert.ErrorIs(t, err, rbac.ErrUnauthorized)
}

func TestCheckUsesLiveSnapshot(t *testing.T) {
	gate, store := newGate(t)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{ID: "u-4", Role: "produce_manager"})

	_, err := gate.Check(ctx, policy.RequirePermission("product:approve"))
	require.NoError(t, err)

	restricted, err := policy.Build(policy.Document{
		Roles:       []string{"admin", "produce_manager"},
		Permissions: map[string][]string{"product:approve": {"admin"}},
	})
	require.NoError(t, err)
	store.Swap(restricted)

	_, err = gate.Check(ctx, policy.RequirePermission("product:approve"))
	assert.ErrorIs(t, err, rbac.ErrUnauthorized)
}

func TestRequireRoleDeduplicatesBinding(t *testing.T) {
	gate, _ := newGate(t)
	h := gate.RequireRole("admin", "admin")(okHandler)

	rr, _ := serve(h, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "u", "buyer"))
	assert.JSONEq(t, `{
		"success": false,
		"message": "Access denied: insufficient permissions",
		"required": ["admin"],
		"current": "buyer"
	}`, rr.Body.String())
	require.Len(t, gate.Bindings(), 1)
}

func TestValidateBindings(t *testing.T) {
	gate, store := newGate(t)
	gate.RequirePermission("product:approve")
	gate.RequirePermission("system:backup")
	gate.RequireRole("admin", "super_admin")
	gate.RequireRole()
	gate.RequirePermission("system:backup")

	faults := gate.ValidateBindings(store.Snapshot())
	require.Len(t, faults, 3)
	assert.ErrorIs(t, faults[0], policy.ErrPermissionNotDefined)
	assert.ErrorIs(t, faults[1], policy.ErrUnknownRole)
	assert.ErrorIs(t, faults[2], rbac.ErrEmptyBinding)

	assert.NotPanics(t, func() { gate.LogBindingFaults(store.Snapshot(), nil) })
}

func TestLogBindingFaultsReportsAtErrorLevel(t *testing.T) {
	engine, err := policy.Default()
	require.NoError(t, err)
	store, err := policy.NewStore(engine)
	require.NoError(t, err)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	gate := rbac.NewGate(store, logger, nil)
	gate.RequirePermission("system:backup")
	gate.RequireRole("super_admin")

	gate.LogBindingFaults(store.Snapshot(), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, "ERROR", rec["level"])
		assert.NotEmpty(t, rec["error"])
	}

	buf.Reset()
	gate.LogBindingFaults(nil, errors.New("reload failed"))
	assert.Empty(t, buf.String())
}

func TestAuthenticated(t *testing.T) {
	gate, _ := newGate(t)
	h := gate.Authenticated(okHandler)

	rr, _ := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = serve(h, withActor(httptest.NewRequest(http.MethodGet, "/", nil), "u", "buyer"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
