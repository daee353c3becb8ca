package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCyclicHierarchy indicates the role inheritance edges form a cycle.
	ErrCyclicHierarchy = errors.New("policy: cyclic role hierarchy")
	// ErrPermissionNotDefined indicates a permission key missing from the catalog.
	ErrPermissionNotDefined = errors.New("policy: permission not defined")
	// ErrInvalidPermission indicates a malformed permission key.
	ErrInvalidPermission = errors.New("policy: invalid permission key")
	// ErrUnknownRole indicates a grant referencing a role the hierarchy does not declare.
	ErrUnknownRole = errors.New("policy: unknown role")
	// ErrEmptyPolicy indicates a document without any declared role.
	ErrEmptyPolicy = errors.New("policy: no roles declared")
)

// CycleError reports the inheritance path that closes a cycle.
type CycleError struct {
	Path []Role
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("policy: cyclic role hierarchy: %s", strings.Join(Strings(e.Path), " -> "))
}

// Unwrap lets errors.Is match ErrCyclicHierarchy.
func (e *CycleError) Unwrap() error {
	return ErrCyclicHierarchy
}

// MissingPermissionError reports a lookup of an undeclared permission key. It is
// a configuration fault, never an ordinary denial.
type MissingPermissionError struct {
	Permission Permission
}

func (e *MissingPermissionError) Error() string {
	return fmt.Sprintf("policy: permission not defined: %q", e.Permission)
}

// Unwrap lets errors.Is match ErrPermissionNotDefined.
func (e *MissingPermissionError) Unwrap() error {
	return ErrPermissionNotDefined
}

// IsConfigFault reports whether err stems from a policy misconfiguration.
func IsConfigFault(err error) bool {
	return errors.Is(err, ErrCyclicHierarchy) ||
		errors.Is(err, ErrPermissionNotDefined) ||
		errors.Is(err, ErrInvalidPermission) ||
		errors.Is(err, ErrUnknownRole) ||
		errors.Is(err, ErrEmptyPolicy)
}
