// Package rbac guards HTTP operations with requirements bound at route
// registration and evaluated against the live policy snapshot.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/agromart/agromart/internal/observability"
	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/shared"
)

// Decision outcomes reported to metrics.
const (
	outcomeAllow           = "allow"
	outcomeDeny            = "deny"
	outcomeUnauthenticated = "unauthenticated"
	outcomeFault           = "fault"
)

// ErrEmptyBinding is reported for a role requirement that names no roles.
var ErrEmptyBinding = errors.New("rbac: requirement names no roles")

// Gate evaluates requirements for the actor carried by the request context.
type Gate struct {
	store   *policy.Store
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	bindings []policy.Requirement
	seen     map[string]struct{}
}

// NewGate constructs a gate over the policy store.
func NewGate(store *policy.Store, logger *slog.Logger, metrics *observability.Metrics) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:   store,
		logger:  logger.With(slog.String("component", "rbac")),
		metrics: metrics,
		seen:    make(map[string]struct{}),
	}
}

// Check authorizes the context's actor against req using one policy snapshot.
// The error is ErrUnauthenticated, a *DeniedError, or a configuration fault
// matching policy.ErrPermissionNotDefined.
func (g *Gate) Check(ctx context.Context, req policy.Requirement) (policy.Decision, error) {
	kind := string(req.Kind())
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		g.metrics.ObserveDecision(kind, outcomeUnauthenticated)
		return policy.Decision{Requirement: req}, ErrUnauthenticated
	}
	engine := g.store.Snapshot()
	if engine == nil {
		g.metrics.ObserveDecision(kind, outcomeFault)
		return policy.Decision{Requirement: req}, errors.New("rbac: policy not loaded")
	}
	decision := engine.Decide(actor.Role, req)
	switch {
	case decision.Fault != nil:
		g.metrics.ObserveDecision(kind, outcomeFault)
		g.metrics.ObserveConfigFault(string(req.Permission()))
		g.logger.ErrorContext(ctx, "authorization configuration fault",
			slog.String("requirement", req.String()),
			slog.String("actor_id", actor.ID),
			slog.Any("error", decision.Fault),
		)
		return decision, decision.Fault
	case !decision.Allowed:
		g.metrics.ObserveDecision(kind, outcomeDeny)
		g.logger.DebugContext(ctx, "authorization denied",
			slog.String("requirement", req.String()),
			slog.String("actor_id", actor.ID),
			slog.String("role", string(actor.Role)),
		)
		return decision, &DeniedError{Requirement: req, Current: actor.Role}
	}
	g.metrics.ObserveDecision(kind, outcomeAllow)
	return decision, nil
}

// Require binds req to a handler chain.
func (g *Gate) Require(req policy.Requirement) func(http.Handler) http.Handler {
	g.remember(req)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := g.Check(r.Context(), req); err != nil {
				writeRefusal(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits actors whose role subsumes any of roles.
func (g *Gate) RequireRole(roles ...policy.Role) func(http.Handler) http.Handler {
	return g.Require(policy.AnyRole(roles...))
}

// RequirePermission admits actors holding the catalog permission key.
func (g *Gate) RequirePermission(key string) func(http.Handler) http.Handler {
	return g.Require(policy.RequirePermission(policy.Permission(key)))
}

// Authenticated only requires an actor to be present.
func (g *Gate) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.ActorFromContext(r.Context()); !ok {
			writeRefusal(w, ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Bindings lists every distinct requirement registered so far.
func (g *Gate) Bindings() []policy.Requirement {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]policy.Requirement(nil), g.bindings...)
}

// ValidateBindings reports registered requirements the engine cannot honour:
// permissions missing from the catalog, undeclared roles and empty role sets.
func (g *Gate) ValidateBindings(engine *policy.Engine) []error {
	if engine == nil {
		return []error{errors.New("rbac: policy not loaded")}
	}
	var faults []error
	for _, req := range g.Bindings() {
		if req.Kind() == policy.KindPermission {
			if !engine.Catalog().Has(req.Permission()) {
				faults = append(faults, &policy.MissingPermissionError{Permission: req.Permission()})
			}
			continue
		}
		roles := req.Roles()
		if len(roles) == 0 {
			faults = append(faults, ErrEmptyBinding)
			continue
		}
		for _, r := range roles {
			if !engine.Graph().Declared(r) {
				faults = append(faults, fmt.Errorf("%w: %q bound by %s", policy.ErrUnknownRole, r, req))
			}
		}
	}
	return faults
}

// LogBindingFaults validates bindings against engine and logs each fault. The
// signature matches policy.ReloaderConfig.OnReload; failed reloads are skipped
// because the previous snapshot stays live.
func (g *Gate) LogBindingFaults(engine *policy.Engine, reloadErr error) {
	if reloadErr != nil {
		return
	}
	for _, fault := range g.ValidateBindings(engine) {
		if errors.Is(fault, policy.ErrUnknownRole) {
			g.logger.Error("binding names undeclared role", slog.Any("error", fault))
			continue
		}
		g.logger.Error("binding cannot be satisfied", slog.Any("error", fault))
	}
}

func (g *Gate) remember(req policy.Requirement) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := req.String()
	if _, ok := g.seen[key]; ok {
		return
	}
	g.seen[key] = struct{}{}
	g.bindings = append(g.bindings, req)
}
