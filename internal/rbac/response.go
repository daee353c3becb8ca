package rbac

import (
	"errors"
	"net/http"

	"github.com/agromart/agromart/internal/platform/httpx"
	"github.com/agromart/agromart/internal/policy"
)

const (
	messageUnauthenticated = "Authentication required"
	messageDenied          = "Access denied: insufficient permissions"
	messageNotDefined      = "Permission not defined"
	messageInternal        = "Internal server error"
)

// Refusal is the body written when the gate stops a request.
type Refusal struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Required []string `json:"required,omitempty"`
	Current  string   `json:"current,omitempty"`
}

// writeRefusal maps a gate error to its status code and body.
func writeRefusal(w http.ResponseWriter, err error) {
	var denied *DeniedError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httpx.JSON(w, http.StatusUnauthorized, Refusal{Message: messageUnauthenticated})
	case errors.As(err, &denied):
		httpx.JSON(w, http.StatusForbidden, Refusal{
			Message:  messageDenied,
			Required: denied.Requirement.Required(),
			Current:  string(denied.Current),
		})
	case errors.Is(err, policy.ErrPermissionNotDefined):
		httpx.JSON(w, http.StatusInternalServerError, Refusal{Message: messageNotDefined})
	default:
		httpx.JSON(w, http.StatusInternalServerError, Refusal{Message: messageInternal})
	}
}
