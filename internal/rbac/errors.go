package rbac

import (
	"errors"
	"fmt"

	"github.com/agromart/agromart/internal/policy"
)

var (
	// ErrUnauthenticated indicates no actor is attached to the request.
	ErrUnauthenticated = errors.New("rbac: authentication required")
	// ErrUnauthorized indicates the actor lacks the required role or permission.
	ErrUnauthorized = errors.New("rbac: insufficient permissions")
)

// DeniedError describes a refused requirement. It matches ErrUnauthorized.
type DeniedError struct {
	Requirement policy.Requirement
	Current     policy.Role
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rbac: role %q does not satisfy %s", e.Current, e.Requirement)
}

func (e *DeniedError) Unwrap() error {
	return ErrUnauthorized
}
