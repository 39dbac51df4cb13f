package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/benithors/domhaul/internal/config"
	"github.com/benithors/domhaul/internal/logger"
	"github.com/benithors/domhaul/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app carries global flags, the loaded environment config and everything
// built from them for the running command.
type app struct {
	Version string

	// Global flags.
	VersionFlag          bool
	Format               string
	JSON                 bool
	NDJSON               bool
	Plain                bool
	Timeout              time.Duration
	Concurrency          int
	Attempts             int
	RPS                  float64
	Lookup               string
	Cache                string
	Strict               bool
	Quiet                bool
	Verbose              bool
	Registrar            string
	RegistrarConcurrency int

	// Derived runtime state.
	env       *config.Config
	log       *slog.Logger
	outFormat outputFormat
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	closers   []func()
}

func newRootCmd(ver string) (*cobra.Command, *app) {
	a := &app{Version: ver}

	root := &cobra.Command{
		Use:           "domhaul",
		Short:         "Generate brandable names and find the domains still free",
		SilenceErrors: true,
		SilenceUsage:  true,
		// Without an Args validator cobra reports unknown subcommands as a
		// plain error, which would exit 1.
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErr(cmd, fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath()))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SetFlagErrorFunc(usageErr)

	pf := root.PersistentFlags()
	pf.BoolVar(&a.VersionFlag, "version", false, "Print version and exit")
	pf.StringVar(&a.Format, "format", "auto", "Output format: auto|table|ndjson|json|plain")
	pf.BoolVar(&a.JSON, "json", false, "Alias for --format json (single JSON array)")
	pf.BoolVar(&a.NDJSON, "ndjson", false, "Alias for --format ndjson (one JSON object per line)")
	pf.BoolVar(&a.NDJSON, "jsonl", false, "Alias for --format ndjson (one JSON object per line)")
	pf.BoolVar(&a.Plain, "plain", false, "Alias for --format plain (stable tab-separated)")
	pf.DurationVar(&a.Timeout, "timeout", 15*time.Second, "Per-lookup timeout (env LOOKUP_TIMEOUT)")
	pf.IntVar(&a.Concurrency, "concurrency", 5, "Max concurrent lookups (env CHECK_CONCURRENCY)")
	pf.IntVar(&a.Attempts, "attempts", 4, "Lookup attempts per domain (env CHECK_MAX_ATTEMPTS)")
	pf.Float64Var(&a.RPS, "rps", 0, "RDAP queries per second, 0 for unpaced (env LOOKUP_RPS)")
	pf.StringVar(&a.Lookup, "lookup", "auto", "Lookup backend: auto|rdap|whois (env DOMHAUL_LOOKUP)")
	pf.StringVar(&a.Cache, "cache", "auto", "Taken-cache store: auto|memory|redis|postgres|none")
	pf.BoolVar(&a.Strict, "strict", false, "Exit non-zero if any result is UNKNOWN/error")
	pf.BoolVarP(&a.Quiet, "quiet", "q", false, "Suppress non-essential stderr output")
	pf.BoolVarP(&a.Verbose, "verbose", "v", false, "Verbose stderr output (diagnostics)")
	pf.StringVar(&a.Registrar, "registrar", "auto", "Registrar provider for buyable checks: auto|none|porkbun")
	pf.IntVar(&a.RegistrarConcurrency, "registrar-concurrency", 4, "Max concurrent registrar checks")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.VersionFlag {
			fmt.Fprintf(os.Stdout, "domhaul %s (%s/%s)\n", a.Version, runtime.GOOS, runtime.GOARCH)
			return errExit0
		}

		format, err := a.formatFlag()
		if err != nil {
			return usageErr(cmd, err)
		}
		a.outFormat = resolveFormat(format, os.Stdout)

		env, err := config.Load()
		if err != nil {
			return usageErr(cmd, fmt.Errorf("invalid environment: %w", err))
		}
		a.env = env
		a.applyFlags(cmd)

		a.log = logger.New(a.logLevel(), os.Stderr)
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.New(a.registry)
		return nil
	}

	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newSearchCmd(a))
	root.AddCommand(newGenerateCmd(a))
	root.AddCommand(newServeCmd(a))

	return root, a
}

func (a *app) formatFlag() (string, error) {
	formatStr := strings.ToLower(strings.TrimSpace(a.Format))
	if formatStr == "" {
		formatStr = "auto"
	}

	aliases := 0
	for _, set := range []bool{a.JSON, a.NDJSON, a.Plain} {
		if set {
			aliases++
		}
	}
	if aliases > 1 {
		return "", fmt.Errorf("flags are mutually exclusive: --json, --ndjson, --plain")
	}
	if formatStr != "auto" && aliases == 1 {
		return "", fmt.Errorf("do not combine --format with --json/--ndjson/--plain")
	}

	switch {
	case a.JSON:
		formatStr = "json"
	case a.NDJSON:
		formatStr = "ndjson"
	case a.Plain:
		formatStr = "plain"
	}
	return formatStr, nil
}

// applyFlags lets explicitly set flags override the environment.
func (a *app) applyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("timeout") {
		a.env.LookupTimeout = a.Timeout
	}
	if f.Changed("concurrency") {
		a.env.CheckConcurrency = max(1, a.Concurrency)
	}
	if f.Changed("attempts") {
		a.env.CheckMaxAttempts = max(1, a.Attempts)
	}
	if f.Changed("rps") {
		a.env.LookupRPS = a.RPS
	}
	if f.Changed("lookup") {
		a.env.Lookup = a.Lookup
	}
}

func (a *app) logLevel() string {
	switch {
	case a.Quiet:
		return "error"
	case a.Verbose:
		return "debug"
	default:
		return a.env.LogLevel
	}
}

// close releases stores opened for the command. It is safe to call when no
// command ran.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }
