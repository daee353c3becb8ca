package policy

import "fmt"

// RequirementKind distinguishes role-set requirements from permission requirements.
type RequirementKind string

const (
	// KindRoles requires membership in any of a fixed set of roles.
	KindRoles RequirementKind = "roles"
	// KindPermission requires holding a single catalog permission.
	KindPermission RequirementKind = "permission"
)

// Requirement is bound when an operation is registered and never derived from
// request input. The zero value is an empty role set and is never satisfied.
type Requirement struct {
	kind       RequirementKind
	roles      []Role
	permission Permission
}

// AnyRole builds a requirement satisfied by any of the roles. Duplicates are
// dropped, first occurrence wins.
func AnyRole(roles ...Role) Requirement {
	unique := make([]Role, 0, len(roles))
	for _, r := range roles {
		r = NormalizeRole(string(r))
		if r == "" || containsRole(unique, r) {
			continue
		}
		unique = append(unique, r)
	}
	return Requirement{kind: KindRoles, roles: unique}
}

// RequirePermission builds a requirement for a single catalog key.
func RequirePermission(key Permission) Requirement {
	return Requirement{kind: KindPermission, permission: NormalizePermission(string(key))}
}

// Kind reports the requirement flavour.
func (r Requirement) Kind() RequirementKind {
	if r.kind == "" {
		return KindRoles
	}
	return r.kind
}

// Roles returns the acceptable roles of a role requirement.
func (r Requirement) Roles() []Role {
	return append([]Role(nil), r.roles...)
}

// Permission returns the key of a permission requirement.
func (r Requirement) Permission() Permission {
	return r.permission
}

// Required lists what an actor must hold, for refusal payloads.
func (r Requirement) Required() []string {
	if r.Kind() == KindPermission {
		return []string{string(r.permission)}
	}
	return Strings(r.roles)
}

func (r Requirement) String() string {
	if r.Kind() == KindPermission {
		return fmt.Sprintf("permission(%s)", r.permission)
	}
	return fmt.Sprintf("roles(%v)", r.Required())
}

// Decision is the ephemeral outcome of an authorization check.
type Decision struct {
	Allowed     bool
	MatchedRole Role
	Requirement Requirement
	// Fault is set only when the requirement could not be evaluated because
	// the policy is misconfigured. Allowed is always false in that case.
	Fault error
}

// Engine evaluates requirements against one immutable hierarchy and catalog
// snapshot. It holds no locks and is safe for concurrent use.
type Engine struct {
	graph   *RoleGraph
	catalog *Catalog
}

// NewEngine binds a graph and a catalog. Every role named by a grant must be
// declared in the graph.
func NewEngine(graph *RoleGraph, catalog *Catalog) (*Engine, error) {
	if graph == nil || len(graph.children) == 0 {
		return nil, ErrEmptyPolicy
	}
	if catalog == nil {
		catalog = &Catalog{grants: map[Permission][]Role{}}
	}
	for _, g := range catalog.Grants() {
		for _, r := range g.Roles {
			if !graph.Declared(r) {
				return nil, fmt.Errorf("%w: %q granted %s", ErrUnknownRole, r, g.Permission)
			}
		}
	}
	return &Engine{graph: graph, catalog: catalog}, nil
}

// Graph exposes the hierarchy snapshot.
func (e *Engine) Graph() *RoleGraph {
	return e.graph
}

// Catalog exposes the permission snapshot.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// SatisfiesAnyRole is true iff required ∩ closure(actorRole) is non-empty. An
// empty requirement set is never satisfied.
func (e *Engine) SatisfiesAnyRole(actorRole Role, required []Role) bool {
	_, ok := e.match(actorRole, required)
	return ok
}

// HasPermission resolves the roles entitled to the permission and checks the
// actor against them. An undeclared key denies and carries the fault.
func (e *Engine) HasPermission(actorRole Role, permission Permission) Decision {
	return e.Decide(actorRole, RequirePermission(permission))
}

// Decide evaluates any requirement. Both query methods route through here.
func (e *Engine) Decide(actorRole Role, req Requirement) Decision {
	decision := Decision{Requirement: req}
	required := req.roles
	if req.Kind() == KindPermission {
		roles, err := e.catalog.RolesFor(req.permission)
		if err != nil {
			decision.Fault = err
			return decision
		}
		required = roles
	}
	if matched, ok := e.match(actorRole, required); ok {
		decision.Allowed = true
		decision.MatchedRole = matched
	}
	return decision
}

func (e *Engine) match(actorRole Role, required []Role) (Role, bool) {
	if len(required) == 0 || actorRole == "" {
		return "", false
	}
	for _, r := range required {
		if e.graph.Subsumes(actorRole, r) {
			return r, true
		}
	}
	return "", false
}
