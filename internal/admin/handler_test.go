package admin

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromart/agromart/internal/audit"
	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/rbac"
	"github.com/agromart/agromart/internal/shared"
)

func newRouter(t *testing.T) (chi.Router, fixture) {
	t.Helper()
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := rbac.NewGate(f.policy, logger, nil)
	router := chi.NewRouter()
	NewHandler(logger, f.service, gate).MountRoutes(router)
	require.Empty(t, gate.ValidateBindings(f.policy.Snapshot()))
	return router, f
}

func call(router http.Handler, method, path, body string, role policy.Role) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "198.51.100.23:5123"
	req.Header.Set("User-Agent", "agromart-console/2.0")
	req.Header.Set(audit.LocationHeader, "Kisumu")
	if role != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: "staff-" + string(role), Role: role}))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouteRequirements(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		role   policy.Role
		want   int
	}{
		{"support approves farmer", http.MethodPost, "/admin/farmers/farmer-1/approve", "", "farmer_support", http.StatusOK},
		{"buyer cannot approve farmer", http.MethodPost, "/admin/farmers/farmer-1/approve", "", "buyer", http.StatusForbidden},
		{"support cannot suspend", http.MethodPost, "/admin/users/user-1/suspend", `{"reason":"spam"}`, "farmer_support", http.StatusForbidden},
		{"admin suspends", http.MethodPost, "/admin/users/user-1/suspend", `{"reason":"spam"}`, "admin", http.StatusOK},
		{"support resolves dispute", http.MethodPost, "/admin/disputes/dispute-1/resolve", `{"outcome":"refund_buyer"}`, "farmer_support", http.StatusOK},
		{"logistics cannot resolve dispute", http.MethodPost, "/admin/disputes/dispute-1/resolve", `{"outcome":"refund_buyer"}`, "logistics_coordinator", http.StatusForbidden},
		{"produce manager approves product", http.MethodPost, "/admin/products/product-1/approve", "", "produce_manager", http.StatusOK},
		{"support cannot approve product", http.MethodPost, "/admin/products/product-1/approve", "", "farmer_support", http.StatusForbidden},
		{"comms deletes announcement", http.MethodDelete, "/admin/announcements/ann-1", "", "communication_manager", http.StatusOK},
		{"anonymous", http.MethodPost, "/admin/products/product-1/reject", `{"reason":"x"}`, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newRouter(t)
			rr := call(router, tc.method, tc.path, tc.body, tc.role)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestDisputeDenialBody(t *testing.T) {
	router, f := newRouter(t)
	rr := call(router, http.MethodPost, "/admin/disputes/dispute-1/resolve", `{"outcome":"refund_buyer"}`, "buyer")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{
		"success": false,
		"message": "Access denied: insufficient permissions",
		"required": ["admin", "farmer_support"],
		"current": "buyer"
	}`, rr.Body.String())
	assert.Equal(t, "open", f.repo.disputes["dispute-1"])
	assert.Empty(t, f.entries(t))
}

func TestHandlerRecordsClientMetadata(t *testing.T) {
	router, f := newRouter(t)
	rr := call(router, http.MethodPost, "/admin/farmers/farmer-1/reject", `{"reason":"incomplete documents"}`, "admin")
	require.Equal(t, http.StatusOK, rr.Code)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, audit.ActionFarmerReject, e.Action)
	assert.Equal(t, "198.51.100.23", e.IPAddress)
	assert.Equal(t, "agromart-console/2.0", e.UserAgent)
	assert.Equal(t, "Kisumu", e.Location)
	assert.Equal(t, "staff-admin", e.ActorID)
}

func TestHandlerValidation(t *testing.T) {
	router, f := newRouter(t)

	rr := call(router, http.MethodPost, "/admin/farmers/farmer-1/reject", "", "admin")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(router, http.MethodPost, "/admin/announcements", `{"title":"Hi","body":"x","audience":"everyone"}`, "admin")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(router, http.MethodPost, "/admin/users/user-1/role", `{"role":`, "admin")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Empty(t, f.entries(t))
}

func TestHandlerErrorMapping(t *testing.T) {
	router, _ := newRouter(t)

	rr := call(router, http.MethodPost, "/admin/products/missing/approve", "", "admin")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(router, http.MethodPost, "/admin/farmers/farmer-2/approve", "", "admin")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = call(router, http.MethodPost, "/admin/users/user-1/role", `{"role":"super_admin"}`, "admin")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateAnnouncement(t *testing.T) {
	router, f := newRouter(t)
	rr := call(router, http.MethodPost, "/admin/announcements", `{"title":"Rains","body":"Expect delays","audience":"farmers"}`, "communication_manager")
	require.Equal(t, http.StatusCreated, rr.Code)

	var body struct {
		Success      bool         `json:"success"`
		Announcement Announcement `json:"announcement"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Contains(t, f.repo.announcements, body.Announcement.ID)
}
