package admin

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agromart/agromart/internal/audit"
	"github.com/agromart/agromart/internal/platform/httpx"
	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/shared"
)

// Guard binds requirements to routes at registration time.
type Guard interface {
	RequireRole(roles ...policy.Role) func(http.Handler) http.Handler
	RequirePermission(key string) func(http.Handler) http.Handler
}

// Handler exposes the admin operations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    Guard
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		guard:    guard,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers admin routes with their fixed requirements.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.With(h.guard.RequirePermission("farmer:approve")).Post("/farmers/{id}/approve", h.approveFarmer)
		r.With(h.guard.RequirePermission("farmer:approve")).Post("/farmers/{id}/reject", h.rejectFarmer)

		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireRole("admin"))
			r.Post("/users/{id}/suspend", h.suspendAccount)
			r.Post("/users/{id}/reactivate", h.reactivateAccount)
			r.Post("/users/{id}/role", h.changeRole)
		})

		r.With(h.guard.RequirePermission("announcement:create")).Post("/announcements", h.createAnnouncement)
		r.With(h.guard.RequirePermission("announcement:delete")).Delete("/announcements/{id}", h.deleteAnnouncement)

		r.With(h.guard.RequireRole("admin", "farmer_support")).Post("/disputes/{id}/resolve", h.resolveDispute)

		r.With(h.guard.RequirePermission("product:approve")).Post("/products/{id}/approve", h.approveProduct)
		r.With(h.guard.RequirePermission("product:approve")).Post("/products/{id}/reject", h.rejectProduct)
	})
}

func (h *Handler) approveFarmer(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.ApproveFarmer(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

func (h *Handler) rejectFarmer(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.RejectFarmer(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

func (h *Handler) suspendAccount(w http.ResponseWriter, r *http.Request) {
	var req SuspendRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.SuspendAccount(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

func (h *Handler) reactivateAccount(w http.ResponseWriter, r *http.Request) {
	var req ReactivateRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.ReactivateAccount(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req RoleChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.ChangeRole(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

func (h *Handler) createAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req AnnouncementRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.service.CreateAnnouncement(r.Context(), origin(r), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "announcement": a})
}

func (h *Handler) deleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.service.DeleteAnnouncement(r.Context(), origin(r), chi.URLParam(r, "id")))
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeResolution
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.ResolveDispute(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

func (h *Handler) approveProduct(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.ApproveProduct(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

func (h *Handler) rejectProduct(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.RejectProduct(r.Context(), origin(r), chi.URLParam(r, "id"), req))
}

// decode reads an optional JSON body and validates it. An empty body decodes
// to the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "request body must be JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+":"+fe.Tag())
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(fields, ", "))
			return false
		}
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !IsBusinessError(err) {
		h.logger.Error("admin request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// origin captures who acted and from where. The gate has already guaranteed
// an actor is present.
func origin(r *http.Request) audit.Input {
	actor, _ := shared.ActorFromContext(r.Context())
	return audit.Input{Actor: actor}.WithRequest(r)
}
