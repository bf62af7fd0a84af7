package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/idhunt/internal/adapter"
	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/metrics"
	"github.com/nao1215/idhunt/internal/scheduler"
)

// Hunter runs the collection and assembly pipelines of a run.
type Hunter struct {
	collect  *Pipeline
	assemble *Pipeline
	analyze  *Pipeline
	partial  bool
	logger   *slog.Logger
}

// HunterOption configures a Hunter.
type HunterOption func(*hunterConfig)

type hunterConfig struct {
	logger  *slog.Logger
	metrics *metrics.Probes
	analyst analyst.Analyst
	partial bool
}

// WithHunterLogger sets the logger of every step.
func WithHunterLogger(logger *slog.Logger) HunterOption {
	return func(c *hunterConfig) {
		c.logger = logger
	}
}

// WithHunterMetrics records probe metrics.
func WithHunterMetrics(m *metrics.Probes) HunterOption {
	return func(c *hunterConfig) {
		c.metrics = m
	}
}

// WithAnalyst runs the AI analyst after assembly.
func WithAnalyst(a analyst.Analyst) HunterOption {
	return func(c *hunterConfig) {
		c.analyst = a
	}
}

// WithPartialResults keeps the evidence of a cancelled run and assembles a
// partial aggregate instead of discarding it.
func WithPartialResults(partial bool) HunterOption {
	return func(c *hunterConfig) {
		c.partial = partial
	}
}

// NewHunter creates a Hunter that probes with sched and normalizes with registry.
func NewHunter(sched *scheduler.Scheduler, registry *adapter.Registry, opts ...HunterOption) *Hunter {
	cfg := &hunterConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	h := &Hunter{
		collect:  New(WithLogger(cfg.logger)),
		assemble: New(WithLogger(cfg.logger)),
		partial:  cfg.partial,
		logger:   cfg.logger,
	}
	h.collect.AddSteps(
		NewDeriveStep(cfg.logger),
		NewProbeStep(sched, registry, WithProbeMetrics(cfg.metrics), WithProbeLogger(cfg.logger)),
	)
	h.assemble.AddSteps(
		NewCorrelateStep(),
		NewFilterStep(),
		NewAssembleStep(),
	)
	if cfg.analyst != nil {
		h.analyze = New(WithLogger(cfg.logger))
		h.analyze.AddStep(NewAnalyzeStep(cfg.analyst, cfg.logger))
	}
	return h
}

// StepNames returns the names of all steps in execution order.
func (h *Hunter) StepNames() []string {
	names := append(h.collect.StepNames(), h.assemble.StepNames()...)
	if h.analyze != nil {
		names = append(names, h.analyze.StepNames()...)
	}
	return names
}

// Hunt executes the run. On success run.Aggregate is frozen.
//
// When ctx is cancelled during collection, Hunt returns the cancellation
// error and leaves the aggregate unassembled, unless partial results are
// enabled: then the collected evidence is assembled into an aggregate
// marked partial and Hunt returns nil. The analyst is skipped for
// cancelled runs.
func (h *Hunter) Hunt(ctx context.Context, run *Run) error {
	if err := h.collect.Execute(ctx, run); err != nil {
		if !h.partial || !isCancellation(err) {
			return err
		}
		run.Partial = true
		h.logger.Warn("run cancelled, assembling partial results",
			"run", run.RunID(),
			"results", run.Stats.Dispatched,
		)
	}

	if err := h.assemble.Execute(context.WithoutCancel(ctx), run); err != nil {
		return err
	}

	if h.analyze != nil && !run.Partial && ctx.Err() == nil {
		return h.analyze.Execute(ctx, run)
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
