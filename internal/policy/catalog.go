package policy

import (
	"fmt"
	"sort"
)

// Catalog is the closed permission list mapping each key to the roles directly
// entitled to it.
type Catalog struct {
	grants map[Permission][]Role
}

// NewCatalog validates permission keys and merges duplicate grants. Role order
// within a grant follows first declaration.
func NewCatalog(grants []Grant) (*Catalog, error) {
	c := &Catalog{grants: make(map[Permission][]Role, len(grants))}
	for _, g := range grants {
		if !g.Permission.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPermission, g.Permission)
		}
		existing := c.grants[g.Permission]
		if existing == nil {
			existing = []Role{}
		}
		for _, r := range g.Roles {
			if r == "" || containsRole(existing, r) {
				continue
			}
			existing = append(existing, r)
		}
		c.grants[g.Permission] = existing
	}
	return c, nil
}

// RolesFor returns the roles directly entitled to the permission, or a
// *MissingPermissionError when the key is not part of the catalog.
func (c *Catalog) RolesFor(p Permission) ([]Role, error) {
	roles, ok := c.grants[p]
	if !ok {
		return nil, &MissingPermissionError{Permission: p}
	}
	return append([]Role(nil), roles...), nil
}

// Has reports whether the key is declared.
func (c *Catalog) Has(p Permission) bool {
	_, ok := c.grants[p]
	return ok
}

// Permissions lists every declared key in lexical order.
func (c *Catalog) Permissions() []Permission {
	out := make([]Permission, 0, len(c.grants))
	for p := range c.grants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Grants returns a copy of the catalog ordered by permission key.
func (c *Catalog) Grants() []Grant {
	out := make([]Grant, 0, len(c.grants))
	for _, p := range c.Permissions() {
		out = append(out, Grant{Permission: p, Roles: append([]Role(nil), c.grants[p]...)})
	}
	return out
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
