package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/weiihann/forkbench/harness"
)

// Adapter spawns node instances for a given transport.
type Adapter struct {
	Binary string
	Env    Env
	// Output receives the node's stdout when it runs with tracing.
	Output io.Writer
	Logger *slog.Logger
	Trace  *TraceToggle
}

// NewAdapter creates an Adapter running binary. All adapters created
// this way share the process-wide tracing toggle.
func NewAdapter(binary string, env Env, output io.Writer, logger *slog.Logger) *Adapter {
	return &Adapter{
		Binary: binary,
		Env:    env,
		Output: output,
		Logger: logger,
		Trace:  &processTrace,
	}
}

// Configure builds the trial configuration for kind. Only the first
// successful call in the process gets tracing; the rest run silent.
func (a *Adapter) Configure(kind Transport) (Config, error) {
	if err := a.Env.Require(kind); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Transport:        kind,
		ForkBlock:        ForkBlock,
		Host:             DefaultHost,
		Port:             DefaultPort,
		IPCPath:          DefaultIPCPath(),
		GasLimit:         GasLimit,
		ChainID:          ChainID,
		NoStorageCaching: true,
		AutoImpersonate:  true,
	}

	switch kind {
	case HTTPLocal:
		cfg.ForkURL = a.Env.RPCURLLocal
	case HTTPRemote:
		cfg.ForkURL = a.Env.RPCURL
	case IPC:
		cfg.ForkURL = a.Env.IPCPath
	case IPCDatabase:
		cfg.ForkURL = a.Env.IPCPath
		cfg.StatePath = a.Env.DBPath
	}

	if a.Trace.First() {
		cfg.Tracing = true
		cfg.StepsTracing = true
	} else {
		cfg.Silent = true
	}

	return cfg, nil
}

// Factory returns a harness factory that configures and spawns a fresh
// node of kind on every call. Configuration errors are fatal to the run.
func (a *Adapter) Factory(kind Transport) harness.Factory[*Instance] {
	return func(ctx context.Context) (*Instance, error) {
		cfg, err := a.Configure(kind)
		if err != nil {
			return nil, harness.Fatal(err)
		}

		return a.Spawn(ctx, cfg)
	}
}

// Spawn starts a node for cfg and returns once it answers JSON-RPC
// requests over the configured transport.
func (a *Adapter) Spawn(ctx context.Context, cfg Config) (*Instance, error) {
	logger := a.Logger.With(slog.String("transport", cfg.Transport.String()))

	if err := os.Remove(cfg.IPCPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale ipc socket %s: %w", cfg.IPCPath, err)
	}

	cmd := exec.Command(a.Binary, cfg.Args()...)

	stderr := new(syncBuffer)
	cmd.Stderr = stderr
	cmd.Stdout = io.Discard
	if !cfg.Silent && a.Output != nil {
		cmd.Stdout = a.Output
	}

	logger.DebugContext(ctx, "starting node",
		slog.String("binary", a.Binary),
		slog.String("fork_url", cfg.ForkURL),
		slog.Bool("tracing", cfg.Tracing),
	)

	proc, err := startProcess(cmd, stderr)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", a.Binary, err)
	}

	client, err := waitReady(ctx, cfg, proc)
	if err != nil {
		_ = proc.abort(ctx)
		return nil, err
	}

	api, err := dial(ctx, cfg)
	if err != nil {
		client.Close()
		_ = proc.abort(ctx)

		return nil, fmt.Errorf("dial control api: %w", err)
	}

	inst := newInstance(cfg, client, api, proc, logger)

	if cfg.AutoImpersonate {
		if err := inst.AutoImpersonate(ctx, true); err != nil {
			if tdErr := inst.Teardown(ctx); tdErr != nil {
				logger.WarnContext(ctx, "teardown after failed spawn",
					slog.String("error", tdErr.Error()),
				)
			}

			return nil, err
		}
	}

	logger.DebugContext(ctx, "node ready",
		slog.String("endpoint", cfg.Endpoint()),
	)

	return inst, nil
}

func dial(ctx context.Context, cfg Config) (*rpc.Client, error) {
	if cfg.Transport.UsesIPC() {
		return rpc.DialIPC(ctx, cfg.IPCPath)
	}

	return rpc.DialContext(ctx, cfg.Endpoint())
}

// waitReady polls the node until eth_chainId succeeds. It gives up only
// when the process exits or ctx is done.
func waitReady(ctx context.Context, cfg Config, proc *process) (*ethclient.Client, error) {
	var client *ethclient.Client

	op := func() error {
		if proc.exited() {
			return backoff.Permanent(fmt.Errorf(
				"node exited before ready: %v\nstderr: %s", proc.err, proc.stderr.String(),
			))
		}

		c, err := dial(ctx, cfg)
		if err != nil {
			return err
		}

		ec := ethclient.NewClient(c)
		if _, err := ec.ChainID(ctx); err != nil {
			ec.Close()
			return err
		}

		client = ec

		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("wait for node at %s: %w", cfg.Endpoint(), err)
	}

	return client, nil
}
