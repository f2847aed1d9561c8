package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Node is a running node instance owned by a single trial.
type Node interface {
	Teardown(ctx context.Context) error
}

// Factory spawns a fresh node.
type Factory[N Node] func(ctx context.Context) (N, error)

// Probe runs the measured operation against a live node and returns once
// the node has finished processing it.
type Probe[N Node] func(ctx context.Context, node N) error

// Runner measures spawn and probe latency for one node factory.
type Runner[N Node] struct {
	Name   string
	Spawn  Factory[N]
	Probe  Probe[N]
	Logger *slog.Logger
	Diag   io.Writer
}

// NewRunner creates a Runner labelled name. Per-trial failures are
// written to diag.
func NewRunner[N Node](
	name string,
	spawn Factory[N],
	probe Probe[N],
	diag io.Writer,
	logger *slog.Logger,
) *Runner[N] {
	return &Runner[N]{
		Name:   name,
		Spawn:  spawn,
		Probe:  probe,
		Logger: logger.With(slog.String("transport", name)),
		Diag:   diag,
	}
}

// Measure runs one trial: spawn a node, probe it, stop the clock, then
// tear the node down. Teardown time is not part of the result.
func (r *Runner[N]) Measure(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	node, err := r.Spawn(ctx)
	if err != nil {
		return 0, fmt.Errorf("spawn node: %w", err)
	}

	if err := r.Probe(ctx, node); err != nil {
		if tdErr := node.Teardown(ctx); tdErr != nil {
			r.Logger.WarnContext(ctx, "teardown after failed probe",
				slog.String("error", tdErr.Error()),
			)
		}

		return 0, Fatal(fmt.Errorf("probe: %w", err))
	}

	elapsed := time.Since(start)

	if err := node.Teardown(ctx); err != nil {
		r.Logger.WarnContext(ctx, "teardown failed",
			slog.String("error", err.Error()),
		)
	}

	return elapsed, nil
}

// Collect runs Measure n times in sequence. Recoverable failures are
// reported to Diag and contribute no sample. A fatal failure stops the
// loop and is returned with the samples gathered so far.
func (r *Runner[N]) Collect(ctx context.Context, n int) (Samples, error) {
	samples := make(Samples, 0, n)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}

		elapsed, err := r.Measure(ctx)
		if err != nil {
			if IsFatal(err) {
				return samples, fmt.Errorf("trial %d: %w", i+1, err)
			}

			fmt.Fprintf(r.Diag, "Error while measuring system shutdown: %v\n", err)

			continue
		}

		r.Logger.InfoContext(ctx, "trial finished",
			slog.Int("trial", i+1),
			slog.Duration("elapsed", elapsed),
		)

		samples.Add(elapsed)
	}

	r.Logger.InfoContext(ctx, "sampling finished",
		slog.Int("attempts", n),
		slog.Int("samples", len(samples)),
	)

	return samples, nil
}
