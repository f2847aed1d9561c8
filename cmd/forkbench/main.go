// Package main provides the CLI entry point for forkbench, which measures
// how long a forked anvil node takes to spawn and answer a Convex system
// shutdown eth_call over HTTP and IPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiihann/forkbench/harness"
	"github.com/weiihann/forkbench/node"
	"github.com/weiihann/forkbench/probe"
	"github.com/weiihann/forkbench/report"
)

const (
	defaultIterations = 10
	defaultEnvFile    = ".env"
)

var defaultTransports = []string{
	node.HTTPLocal.String(),
	node.IPC.String(),
	node.IPCDatabase.String(),
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "forkbench:", err)
		os.Exit(1)
	}
}

type runConfig struct {
	iterations int
	transports []string
	anvil      string
	envFile    string
	format     string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "forkbench",
		Short: "Benchmark forked anvil spawn + eth_call latency over HTTP and IPC",
		Long: `Forkbench repeatedly spawns an anvil node forked at mainnet block 14445961,
issues a Convex shutdownSystem eth_call from the system owner, times spawn plus
call, tears the node down, and reports mean, std dev, min and max per transport.

Upstream endpoints come from ETH_RPC_URL_LOCAL, ETH_RPC_URL, ETH_IPC_PATH and
ETH_DB_PATH, read from the environment or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(stderr, cfg.logLevel)
			if err != nil {
				return err
			}

			return runBenchmark(cmd.Context(), logger, stdout, stderr, cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.iterations, "iterations", defaultIterations,
		"Trials per transport")
	flags.StringSliceVar(&cfg.transports, "transports", defaultTransports,
		"Transports to benchmark: http-local, http-remote, ipc, ipc-db")
	flags.StringVar(&cfg.anvil, "anvil", "",
		"Path to the anvil binary (default: PATH, then ~/.foundry/bin)")
	flags.StringVar(&cfg.envFile, "env-file", defaultEnvFile,
		"Dotenv file with upstream endpoints")
	flags.StringVar(&cfg.format, "format", "text",
		"Output format: text, markdown, json")
	flags.StringVar(&cfg.logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	return cmd
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	stdout, stderr io.Writer,
	cfg runConfig,
) error {
	if cfg.iterations < 1 {
		return fmt.Errorf("--iterations must be at least 1, got %d", cfg.iterations)
	}

	switch cfg.format {
	case "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown format %q", cfg.format)
	}

	kinds, err := parseTransports(cfg.transports)
	if err != nil {
		return err
	}

	env, err := node.LoadEnv(cfg.envFile)
	if err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	// Step 1: Fail before the first trial if any endpoint is missing.
	for _, kind := range kinds {
		if err := env.Require(kind); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
	}

	// Step 2: Locate anvil.
	binary, err := node.ResolveBinary(cfg.anvil)
	if err != nil {
		return err
	}

	version, err := node.Version(ctx, binary)
	if err != nil {
		logger.WarnContext(ctx, "could not read anvil version",
			slog.String("error", err.Error()),
		)
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("anvil", binary),
		slog.String("version", version),
		slog.Int("iterations", cfg.iterations),
		slog.Any("transports", cfg.transports),
		slog.Uint64("fork_block", node.ForkBlock),
	)

	adapter := node.NewAdapter(binary, env, stderr, logger)

	// Step 3: Sample each transport sequentially.
	summaries := make([]report.Summary, 0, len(kinds))

	for _, kind := range kinds {
		runner := harness.NewRunner(
			kind.Label(), adapter.Factory(kind), runProbe, stderr, logger,
		)

		samples, err := runner.Collect(ctx, cfg.iterations)
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}

		summary, err := report.Summarize(kind.Label(), samples)
		if err != nil {
			return err
		}

		if cfg.format == "text" {
			if err := summary.WriteText(stdout); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}

		summaries = append(summaries, summary)
	}

	// Step 4: Emit the combined report.
	switch cfg.format {
	case "markdown":
		if err := report.Generate(stdout, summaries); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	case "json":
		if err := report.GenerateJSON(stdout, summaries); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func runProbe(ctx context.Context, inst *node.Instance) error {
	return probe.Run(ctx, inst)
}

func parseTransports(names []string) ([]node.Transport, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one transport must be specified via --transports")
	}

	kinds := make([]node.Transport, 0, len(names))
	for _, name := range names {
		kind, err := node.ParseTransport(name)
		if err != nil {
			return nil, fmt.Errorf("%w (known: %s)", err, knownTransports())
		}

		kinds = append(kinds, kind)
	}

	return kinds, nil
}

func knownTransports() string {
	names := make([]string, 0, len(node.KnownTransports()))
	for _, kind := range node.KnownTransports() {
		names = append(names, kind.String())
	}

	return strings.Join(names, ", ")
}
