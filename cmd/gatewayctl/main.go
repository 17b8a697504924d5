package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/briangreenhill/apigateway/internal/app"
	"github.com/briangreenhill/apigateway/internal/config"
	"github.com/briangreenhill/apigateway/internal/logging"
)

// builder opens the shared components; swapped out in tests.
type builder func(ctx context.Context) (*app.App, error)

func main() {
	if err := runCLI(context.Background(), os.Args[1:], os.Stdout, fromEnv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func fromEnv(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logging.New(cfg.LogLevel, cfg.LogPretty))
}

func runCLI(ctx context.Context, args []string, out io.Writer, build builder) error {
	if len(args) == 0 {
		printUsage(out)
		return nil
	}

	switch args[0] {
	case "help", "--help", "-h":
		printUsage(out)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintln(out, "gatewayctl v0.1.0")
		return nil
	case "setup-services":
		return withApp(ctx, build, func(a *app.App) error {
			changed, err := app.Provision(ctx, a.Provisioner, os.Getenv, a.Log)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Updated %d service(s)\n", len(changed))
			for _, name := range changed {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		})
	case "cleanup-cache":
		return withApp(ctx, build, func(a *app.App) error {
			s := a.Sweeper()
			if s == nil {
				return errors.New("cache backend does not support cleanup")
			}
			n, err := s.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep cache: %w", err)
			}
			fmt.Fprintf(out, "Deleted %d expired cache files\n", n)
			return nil
		})
	case "recent-logs":
		var service string
		limit := 50
		if len(args) > 1 {
			service = args[1]
		}
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit: %q", args[2])
			}
			limit = n
		}
		return withApp(ctx, build, func(a *app.App) error {
			if a.Audit == nil {
				return errors.New("recent-logs requires DATABASE_URL")
			}
			logs, err := a.Audit.Recent(ctx, service, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSERVICE\tSTATUS\tMS\tCACHE\tCALLER\tENDPOINT")
			for _, o := range logs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\t%s\n",
					o.Timestamp.Format(time.RFC3339), o.Service, o.Status, o.LatencyMS, o.CacheHit, o.Caller, o.Endpoint)
			}
			return tw.Flush()
		})
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func withApp(ctx context.Context, build builder, fn func(a *app.App) error) error {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: gatewayctl <command> [args]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  setup-services              Store service secrets from the environment")
	fmt.Fprintln(out, "  cleanup-cache               Delete expired cache entries")
	fmt.Fprintln(out, "  recent-logs [service] [n]   Show the latest audit records")
	fmt.Fprintln(out, "  version                     Show version")
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  SECRET_KEY                  Master key for secrets at rest (required)")
	fmt.Fprintln(out, "  DATABASE_URL                Postgres connection string (optional)")
	fmt.Fprintln(out, "  OPENWEATHER_API_KEY, NEWSAPI_API_KEY, GITHUB_PERSONAL_TOKEN,")
	fmt.Fprintln(out, "  COINGECKO_API_KEY, EXCHANGE_RATE_API_KEY")
}
