// Command policyctl checks policy documents and inspects the audit retry queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/agromart/agromart/cmd/policyctl/cli"
)

const usage = `usage: policyctl <command> [flags]

commands:
  check    build a policy document and report whether it is accepted
  explain  evaluate a requirement for a role
  reload   enqueue a cluster-wide policy reload
  queue    show audit retry queue depth and stuck entries
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitUsage
	}
	policyCLI := cli.NewPolicyCLI()
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("file", os.Getenv("POLICY_FILE"), "policy YAML file; the embedded policy when empty")
	jsonOut := fs.Bool("json", false, "emit JSON")

	switch args[0] {
	case "check":
		if err := fs.Parse(args[1:]); err != nil {
			return cli.ExitUsage
		}
		return policyCLI.CheckCommand(ctx, cli.CheckOptions{Path: *path, JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
	case "explain":
		role := fs.String("role", "", "actor role")
		permission := fs.String("permission", "", "permission key")
		anyRole := fs.String("any-role", "", "comma separated roles")
		if err := fs.Parse(args[1:]); err != nil {
			return cli.ExitUsage
		}
		return policyCLI.ExplainCommand(ctx, cli.ExplainOptions{
			Path:       *path,
			Role:       *role,
			Permission: *permission,
			Roles:      splitList(*anyRole),
			JSONOutput: *jsonOut,
			Stdout:     stdout,
			Stderr:     stderr,
		})
	case "reload", "queue":
		redisAddr := fs.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
		reason := fs.String("reason", "manual", "reload reason")
		size := fs.Int("size", 10, "stuck entries to list")
		if err := fs.Parse(args[1:]); err != nil {
			return cli.ExitUsage
		}
		jobsCLI := cli.NewJobsCLI(*redisAddr)
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				slog.Default().Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		if args[0] == "reload" {
			info, err := jobsCLI.TriggerPolicyReload(ctx, *reason)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "policy reload: %v\n", err)
				return cli.ExitUsage
			}
			_, _ = fmt.Fprintf(stdout, "enqueued %s on %s\n", info.ID, info.Queue)
			return cli.ExitOK
		}
		stats, err := jobsCLI.InspectQueue(ctx, "")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
			return cli.ExitUsage
		}
		_, _ = fmt.Fprintf(stdout, "%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		ids, err := jobsCLI.StuckEntries(ctx, *size)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
			return cli.ExitUsage
		}
		for _, id := range ids {
			_, _ = fmt.Fprintf(stdout, "  stuck entry %s\n", id)
		}
		return cli.ExitOK
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitUsage
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
