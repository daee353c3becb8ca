// Package policy holds the role hierarchy, the permission catalog and the
// authorization engine that evaluates both.
package policy

import (
	"regexp"
	"sort"
	"strings"
)

// Role is an opaque actor category used as the unit of access control.
type Role string

// Permission is a namespaced capability key of the form <domain>:<action>.
type Permission string

// Edge declares that Parent subsumes the rights of Child.
type Edge struct {
	Parent Role
	Child  Role
}

// Grant associates a permission with the roles directly entitled to it.
type Grant struct {
	Permission Permission
	Roles      []Role
}

// RoleSet is an unordered set of roles.
type RoleSet map[Role]struct{}

var permissionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)

// NormalizeRole trims and lower-cases a role identifier.
func NormalizeRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// NormalizePermission trims and lower-cases a permission key.
func NormalizePermission(raw string) Permission {
	return Permission(strings.ToLower(strings.TrimSpace(raw)))
}

// Valid reports whether the key follows the <domain>:<action> form.
func (p Permission) Valid() bool {
	return permissionPattern.MatchString(string(p))
}

// Domain returns the part of the key before the colon.
func (p Permission) Domain() string {
	domain, _, _ := strings.Cut(string(p), ":")
	return domain
}

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// Sorted returns the members in lexical order.
func (s RoleSet) Sorted() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s RoleSet) clone() RoleSet {
	out := make(RoleSet, len(s))
	for r := range s {
		out[r] = struct{}{}
	}
	return out
}

// Strings converts roles to plain strings, keeping order.
func Strings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
