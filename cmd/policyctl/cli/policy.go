package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agromart/agromart/internal/policy"
)

// Exit codes shared by the policy commands.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitRejected = 10
)

// PolicyCLI inspects policy documents offline.
type PolicyCLI struct {
	sourceFor func(path string) policy.Source
}

// NewPolicyCLI constructs the helper.
func NewPolicyCLI() *PolicyCLI {
	return &PolicyCLI{sourceFor: policy.SourceFor}
}

// CheckOptions defines flags for the check command.
type CheckOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CheckSummary is the JSON form of a check.
type CheckSummary struct {
	OK          bool     `json:"ok"`
	Source      string   `json:"source"`
	Roles       []string `json:"roles,omitempty"`
	Permissions int      `json:"permissions"`
	Error       string   `json:"error,omitempty"`
}

// CheckCommand builds the document and reports whether it would be accepted
// by a running instance.
func (c *PolicyCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	src := c.sourceFor(strings.TrimSpace(opts.Path))
	summary := CheckSummary{Source: src.Name()}

	engine, err := load(ctx, src)
	if err != nil {
		summary.Error = err.Error()
	} else {
		summary.OK = true
		summary.Roles = policy.Strings(engine.Graph().Roles())
		summary.Permissions = len(engine.Catalog().Permissions())
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "policy check: encode json: %v\n", err)
			return ExitUsage
		}
	} else if summary.OK {
		_, _ = fmt.Fprintf(opts.Stdout, "%s: ok (%d roles, %d permissions)\n", summary.Source, len(summary.Roles), summary.Permissions)
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%s: rejected: %s\n", summary.Source, summary.Error)
	}
	if !summary.OK {
		return ExitRejected
	}
	return ExitOK
}

// ExplainOptions defines flags for the explain command. Exactly one of
// Permission or Roles must be set.
type ExplainOptions struct {
	Path       string
	Role       string
	Permission string
	Roles      []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExplainSummary is the JSON form of an explain.
type ExplainSummary struct {
	Role        string   `json:"role"`
	Requirement string   `json:"requirement"`
	Allowed     bool     `json:"allowed"`
	MatchedRole string   `json:"matched_role,omitempty"`
	Closure     []string `json:"closure"`
	Fault       string   `json:"fault,omitempty"`
}

// ExplainCommand evaluates one requirement for a role and prints the reason.
// A denial exits with ExitRejected.
func (c *PolicyCLI) ExplainCommand(ctx context.Context, opts ExplainOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	role := policy.NormalizeRole(opts.Role)
	if role == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "policy explain: --role is required")
		return ExitUsage
	}
	var req policy.Requirement
	switch {
	case opts.Permission != "" && len(opts.Roles) > 0:
		_, _ = fmt.Fprintln(opts.Stderr, "policy explain: use either --permission or --any-role")
		return ExitUsage
	case opts.Permission != "":
		req = policy.RequirePermission(policy.NormalizePermission(opts.Permission))
	case len(opts.Roles) > 0:
		roles := make([]policy.Role, 0, len(opts.Roles))
		for _, raw := range opts.Roles {
			if r := policy.NormalizeRole(raw); r != "" {
				roles = append(roles, r)
			}
		}
		req = policy.AnyRole(roles...)
	default:
		_, _ = fmt.Fprintln(opts.Stderr, "policy explain: --permission or --any-role is required")
		return ExitUsage
	}

	engine, err := load(ctx, c.sourceFor(strings.TrimSpace(opts.Path)))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "policy explain: %v\n", err)
		return ExitUsage
	}

	decision := engine.Decide(role, req)
	summary := ExplainSummary{
		Role:        string(role),
		Requirement: req.String(),
		Allowed:     decision.Allowed,
		MatchedRole: string(decision.MatchedRole),
		Closure:     policy.Strings(engine.Graph().Closure(role).Sorted()),
	}
	if decision.Fault != nil {
		summary.Fault = decision.Fault.Error()
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "policy explain: encode json: %v\n", err)
			return ExitUsage
		}
	} else {
		renderExplain(opts.Stdout, summary)
	}
	if !summary.Allowed {
		return ExitRejected
	}
	return ExitOK
}

func renderExplain(w io.Writer, s ExplainSummary) {
	verdict := "denied"
	if s.Allowed {
		verdict = "allowed"
	}
	_, _ = fmt.Fprintf(w, "%s -> %s: %s\n", s.Role, s.Requirement, verdict)
	if s.MatchedRole != "" {
		_, _ = fmt.Fprintf(w, "  matched via %s\n", s.MatchedRole)
	}
	if s.Fault != "" {
		_, _ = fmt.Fprintf(w, "  fault: %s\n", s.Fault)
	}
	_, _ = fmt.Fprintf(w, "  closure: %s\n", strings.Join(s.Closure, ", "))
}

func load(ctx context.Context, src policy.Source) (*policy.Engine, error) {
	if src == nil {
		return nil, errors.New("policy source not configured")
	}
	doc, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return policy.Build(doc)
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
