package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agromart/agromart/internal/audit"
	"github.com/agromart/agromart/internal/platform/httpx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxDateRange    = 90 * 24 * time.Hour
	dateLayout      = "2006-01-02"
)

// QueryService defines the read contract for the audit trail.
type QueryService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
}

// Guard binds permission requirements to routes.
type Guard interface {
	RequirePermission(key string) func(http.Handler) http.Handler
}

// Handler serves the operator view of the audit trail.
type Handler struct {
	logger  *slog.Logger
	service QueryService
	guard   Guard
	now     func() time.Time
}

// NewHandler constructs an audit handler.
func NewHandler(logger *slog.Logger, service QueryService, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		guard:   guard,
		now:     time.Now,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	result, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "query audit trail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit trail", err)
		return
	}
	data, err := audit.WriteCSV(entries)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-trail.csv\"")
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads query parameters. from/to accept RFC3339 or a plain date;
// a plain "to" date is inclusive of that whole day.
func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	var filters audit.Filters

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, _, err := parseInstant(v)
		if err != nil {
			return audit.Filters{}, validationError{field: "from"}
		}
		filters.From = from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, dateOnly, err := parseInstant(v)
		if err != nil {
			return audit.Filters{}, validationError{field: "to"}
		}
		if dateOnly {
			to = to.Add(24 * time.Hour)
		}
		filters.To = to
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if !filters.From.Before(filters.To) {
			return audit.Filters{}, validationError{field: "range"}
		}
		if filters.To.Sub(filters.From) > maxDateRange {
			return audit.Filters{}, validationError{field: "range"}
		}
	}

	if v := strings.TrimSpace(q.Get("action")); v != "" {
		action := audit.Action(strings.ToLower(v))
		if !action.Valid() {
			return audit.Filters{}, validationError{field: "action"}
		}
		filters.Action = action
	}
	if v := strings.TrimSpace(q.Get("target_type")); v != "" {
		target := audit.TargetType(strings.ToLower(v))
		if !target.Valid() {
			return audit.Filters{}, validationError{field: "target_type"}
		}
		filters.TargetType = target
	}
	filters.ActorID = strings.TrimSpace(q.Get("actor"))

	filters.Page = 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > audit.MaxPage {
			return audit.Filters{}, validationError{field: "page"}
		}
		filters.Page = parsed
	}
	filters.PageSize = defaultPageSize
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

func parseInstant(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var v validationError
	if errors.As(err, &v) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+v.field)
		return
	}
	h.handleServerError(w, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
