package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agromart/agromart/internal/audit"
	"github.com/agromart/agromart/internal/platform/httpx"
	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/shared"
)

// Reloader rebuilds the live policy.
type Reloader interface {
	Trigger(ctx context.Context) (*policy.Engine, error)
}

// Auditor records privileged actions.
type Auditor interface {
	RecordAction(ctx context.Context, in audit.Input) audit.Entry
}

// Notifier asks peer instances to reload.
type Notifier func(ctx context.Context, reason string) error

// Handler exposes the live policy to operators.
type Handler struct {
	logger   *slog.Logger
	gate     *Gate
	store    *policy.Store
	reloader Reloader
	auditor  Auditor
	notify   Notifier
}

// NewHandler builds the policy handler. reloader, auditor and notify may be nil.
func NewHandler(logger *slog.Logger, gate *Gate, store *policy.Store, reloader Reloader, auditor Auditor, notify Notifier) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, store: store, reloader: reloader, auditor: auditor, notify: notify}
}

// MountRoutes registers the policy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/policy", func(r chi.Router) {
		r.With(h.gate.Authenticated).Get("/me", h.me)
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequirePermission("policy:view"))
			r.Get("/roles", h.listRoles)
			r.Get("/permissions", h.listPermissions)
		})
		r.With(h.gate.RequirePermission("policy:reload")).Post("/reload", h.reload)
	})
}

type roleView struct {
	Name     string   `json:"name"`
	Inherits []string `json:"inherits"`
	Closure  []string `json:"closure"`
}

type permissionView struct {
	Key   string   `json:"key"`
	Roles []string `json:"roles"`
}

type actorView struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Closure     []string `json:"closure"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	graph := h.store.Snapshot().Graph()
	roles := graph.Roles()
	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleView{
			Name:     string(role),
			Inherits: policy.Strings(graph.Children(role)),
			Closure:  policy.Strings(graph.Closure(role).Sorted()),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version": h.store.Version(), "roles": out})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	grants := h.store.Snapshot().Catalog().Grants()
	out := make([]permissionView, 0, len(grants))
	for _, g := range grants {
		out = append(out, permissionView{Key: string(g.Permission), Roles: policy.Strings(g.Roles)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version": h.store.Version(), "permissions": out})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	engine := h.store.Snapshot()
	held := make([]string, 0)
	for _, p := range engine.Catalog().Permissions() {
		if engine.HasPermission(actor.Role, p).Allowed {
			held = append(held, string(p))
		}
	}
	httpx.JSON(w, http.StatusOK, actorView{
		ID:          actor.ID,
		Role:        string(actor.Role),
		Closure:     policy.Strings(engine.Graph().Closure(actor.Role).Sorted()),
		Permissions: held,
	})
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Reload Unavailable", "policy reload is not configured")
		return
	}
	ctx := r.Context()
	actor, _ := shared.ActorFromContext(ctx)
	previous := h.store.Version()
	engine, err := h.reloader.Trigger(ctx)

	in := audit.Input{
		Actor:      actor,
		Action:     audit.ActionPolicyReload,
		TargetType: audit.TargetPolicy,
		TargetID:   strconv.FormatUint(h.store.Version(), 10),
		Details:    map[string]any{"previous_version": previous},
		Status:     audit.StatusSuccess,
	}.WithRequest(r)
	if err != nil {
		in.Status = audit.StatusFailure
		in.Details["error"] = err.Error()
	}
	if h.auditor != nil {
		h.auditor.RecordAction(ctx, in)
	}
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Reload Rejected", err.Error())
		return
	}

	if h.notify != nil {
		if err := h.notify(ctx, "reload by "+actor.ID); err != nil {
			h.logger.Warn("policy reload broadcast failed", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"version":     h.store.Version(),
		"roles":       len(engine.Graph().Roles()),
		"permissions": len(engine.Catalog().Permissions()),
	})
}
