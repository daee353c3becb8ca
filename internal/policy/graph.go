package policy

import "sort"

// RoleGraph is an immutable role inheritance DAG with precomputed closures.
type RoleGraph struct {
	children map[Role][]Role
	closure  map[Role]RoleSet
}

const (
	unvisited = iota
	onStack
	done
)

// NewRoleGraph validates the edges and computes the reflexive transitive closure
// for every role. Roles that appear only in edges are declared implicitly. A
// cyclic edge set, self edges included, returns a *CycleError.
func NewRoleGraph(roles []Role, edges []Edge) (*RoleGraph, error) {
	g := &RoleGraph{
		children: make(map[Role][]Role),
		closure:  make(map[Role]RoleSet),
	}
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, ok := g.children[r]; !ok {
			g.children[r] = nil
		}
	}
	seen := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		if e.Parent == "" || e.Child == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		g.children[e.Parent] = append(g.children[e.Parent], e.Child)
		if _, ok := g.children[e.Child]; !ok {
			g.children[e.Child] = nil
		}
	}
	for r := range g.children {
		sort.Slice(g.children[r], func(i, j int) bool { return g.children[r][i] < g.children[r][j] })
	}

	state := make(map[Role]int, len(g.children))
	var stack []Role
	var visit func(r Role) error
	visit = func(r Role) error {
		state[r] = onStack
		stack = append(stack, r)
		closure := NewRoleSet(r)
		for _, child := range g.children[r] {
			switch state[child] {
			case onStack:
				return &CycleError{Path: cyclePath(stack, child)}
			case unvisited:
				if err := visit(child); err != nil {
					return err
				}
			}
			for inherited := range g.closure[child] {
				closure[inherited] = struct{}{}
			}
		}
		stack = stack[:len(stack)-1]
		state[r] = done
		g.closure[r] = closure
		return nil
	}
	for _, r := range g.Roles() {
		if state[r] != unvisited {
			continue
		}
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func cyclePath(stack []Role, target Role) []Role {
	for i, r := range stack {
		if r == target {
			path := append([]Role{}, stack[i:]...)
			return append(path, target)
		}
	}
	return []Role{target, target}
}

// Roles returns every declared role in lexical order.
func (g *RoleGraph) Roles() []Role {
	out := make([]Role, 0, len(g.children))
	for r := range g.children {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Declared reports whether the role is part of the hierarchy.
func (g *RoleGraph) Declared(role Role) bool {
	_, ok := g.children[role]
	return ok
}

// Closure returns a copy of every role the given role subsumes, itself included.
// Undeclared roles subsume only themselves.
func (g *RoleGraph) Closure(role Role) RoleSet {
	if set, ok := g.closure[role]; ok {
		return set.clone()
	}
	return NewRoleSet(role)
}

// Subsumes reports whether holder inherits the rights of target.
func (g *RoleGraph) Subsumes(holder, target Role) bool {
	if holder == target {
		return true
	}
	set, ok := g.closure[holder]
	return ok && set.Has(target)
}

// Children returns the direct inheritance edges declared for a role.
func (g *RoleGraph) Children(role Role) []Role {
	return append([]Role(nil), g.children[role]...)
}
