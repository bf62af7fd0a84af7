package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/idhunt/internal/adapter"
	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/heuristic"
	"github.com/nao1215/idhunt/internal/metrics"
	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/report"
	"github.com/nao1215/idhunt/internal/scheduler"
)

// DeriveStep creates a username alias from the local part of every email
// seed when the policy asks for it.
type DeriveStep struct {
	logger *slog.Logger
}

// NewDeriveStep creates a DeriveStep.
func NewDeriveStep(logger *slog.Logger) *DeriveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeriveStep{logger: logger}
}

// Name returns the step name.
func (s *DeriveStep) Name() string {
	return "derive"
}

// Do executes the derive step.
func (s *DeriveStep) Do(_ context.Context, run *Run) error {
	if !run.Policy().DeriveLocalPart {
		return nil
	}
	for _, alias := range run.Deriver.DeriveLocalParts() {
		s.logger.Debug("derived alias", "alias", alias.Key())
	}
	for _, l := range run.Deriver.Links() {
		if err := run.Engine.AddLink(l); err != nil {
			return err
		}
	}
	return nil
}

// ProbeStep probes every source for every subject and ingests the
// normalized evidence. Identifiers discovered in seed profiles are probed
// in the same run when the policy enables pivoting.
type ProbeStep struct {
	scheduler *scheduler.Scheduler
	registry  *adapter.Registry
	metrics   *metrics.Probes
	logger    *slog.Logger
}

// ProbeStepOption configures a ProbeStep.
type ProbeStepOption func(*ProbeStep)

// WithProbeMetrics records probe metrics.
func WithProbeMetrics(m *metrics.Probes) ProbeStepOption {
	return func(s *ProbeStep) {
		s.metrics = m
	}
}

// WithProbeLogger sets a custom logger for the probe step.
func WithProbeLogger(logger *slog.Logger) ProbeStepOption {
	return func(s *ProbeStep) {
		s.logger = logger
	}
}

// NewProbeStep creates a probe step.
func NewProbeStep(sched *scheduler.Scheduler, registry *adapter.Registry, opts ...ProbeStepOption) *ProbeStep {
	s := &ProbeStep{
		scheduler: sched,
		registry:  registry,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ProbeStep) Name() string {
	return "probe"
}

// Do executes the probe step. It returns ctx.Err() when the run was
// cancelled, after every dispatched probe has resolved.
func (s *ProbeStep) Do(ctx context.Context, run *Run) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatal error
	fail := func(err error) {
		fatal = err
		cancel()
	}

	onResult := func(r scheduler.Result) []scheduler.Task {
		if r.Cancelled {
			run.Stats.Cancelled++
			s.metrics.Cancelled()
			return nil
		}
		if fatal != nil {
			return nil
		}

		out, err := s.registry.Normalize(adapter.Observation{
			Subject:    r.Task.Subject,
			Descriptor: r.Task.Descriptor,
			Result:     r.Raw,
			Err:        r.Err,
			ObservedAt: r.ObservedAt,
		})
		if err != nil {
			fail(fmt.Errorf("failed to normalize %s: %w", r.Task.Descriptor.Name, err))
			return nil
		}
		if err := run.Engine.Ingest(out.Evidence); err != nil {
			fail(err)
			return nil
		}

		run.Stats.Dispatched++
		if out.Evidence.Outcome == model.OutcomeError {
			run.Stats.Errors++
		}
		s.metrics.Observe(string(r.Task.Descriptor.Kind), string(out.Evidence.Outcome), r.Elapsed)

		return s.pivot(run, r.Task.Subject, out.Discovered)
	}

	err := s.scheduler.Run(ctx, tasksFor(run, run.Inputs.Subjects()), onResult)
	if fatal != nil {
		return fatal
	}
	if err != nil {
		return fmt.Errorf("probing stopped after %d results: %w", run.Stats.Dispatched, err)
	}
	s.logger.Debug("probing complete",
		"results", run.Stats.Dispatched,
		"errors", run.Stats.Errors,
		"pivots", run.Stats.Pivots,
	)
	return nil
}

// pivot turns identifiers discovered in a seed's profile into aliases and
// returns their tasks. Aliases are never pivoted from.
func (s *ProbeStep) pivot(run *Run, subject model.Identifier, found []adapter.Discovery) []scheduler.Task {
	if !run.Policy().Pivot || len(found) == 0 {
		return nil
	}
	if _, ok := run.Inputs.Seed(subject.Key()); !ok {
		return nil
	}

	var created []model.Identifier
	for _, d := range found {
		alias, ok := run.Deriver.Derive(subject.Key(), d.Identifier, model.ReasonDiscoveredInProfile, d.Detail)
		if !ok {
			continue
		}
		link := model.Link{
			Alias:  alias.Key(),
			Origin: subject.Key(),
			Reason: model.ReasonDiscoveredInProfile,
			Detail: d.Detail,
		}
		if err := run.Engine.AddLink(link); err != nil {
			s.logger.Warn("discarded discovered alias", "alias", alias.Key(), "error", err)
			continue
		}
		run.Stats.Pivots++
		s.metrics.Pivot()
		s.logger.Debug("pivot", "origin", subject.Key(), "alias", alias.Key(), "detail", d.Detail)
		created = append(created, alias)
	}
	return tasksFor(run, created)
}

// tasksFor pairs every subject with every descriptor; the scheduler skips
// the pairs a descriptor does not accept.
func tasksFor(run *Run, subjects []model.Identifier) []scheduler.Task {
	tasks := make([]scheduler.Task, 0, len(subjects)*len(run.Descriptors))
	for _, subject := range subjects {
		for _, d := range run.Descriptors {
			tasks = append(tasks, scheduler.Task{Subject: subject, Descriptor: d})
		}
	}
	return tasks
}

// CorrelateStep resolves the ingested evidence into the aggregate.
type CorrelateStep struct{}

// NewCorrelateStep creates a CorrelateStep.
func NewCorrelateStep() *CorrelateStep {
	return &CorrelateStep{}
}

// Name returns the step name.
func (s *CorrelateStep) Name() string {
	return "correlate"
}

// Do executes the correlate step.
func (s *CorrelateStep) Do(_ context.Context, run *Run) error {
	return run.Aggregate.SetCorrelation(*run.Inputs, run.Engine.Links(), run.Engine.Evidence(), run.Engine.Resolve())
}

// FilterStep applies the heuristic filter and the NSFW policy of the run.
type FilterStep struct{}

// NewFilterStep creates a FilterStep.
func NewFilterStep() *FilterStep {
	return &FilterStep{}
}

// Name returns the step name.
func (s *FilterStep) Name() string {
	return "filter"
}

// Do executes the filter step.
func (s *FilterStep) Do(_ context.Context, run *Run) error {
	filter, err := heuristic.NewFilter(run.Policy())
	if err != nil {
		return err
	}
	agg := run.Aggregate
	return agg.SetResolutions(filter.Apply(agg.Resolutions, agg.Evidence))
}

// AssembleStep computes the counters, checks the orphan invariant and
// freezes the aggregate.
type AssembleStep struct{}

// NewAssembleStep creates an AssembleStep.
func NewAssembleStep() *AssembleStep {
	return &AssembleStep{}
}

// Name returns the step name.
func (s *AssembleStep) Name() string {
	return "assemble"
}

// Do executes the assemble step.
func (s *AssembleStep) Do(_ context.Context, run *Run) error {
	agg := run.Aggregate
	if run.Partial {
		if err := agg.MarkPartial(); err != nil {
			return err
		}
	}
	if err := agg.ComputeCounters(); err != nil {
		return err
	}
	return agg.Freeze()
}

// AnalyzeStep asks the AI analyst for a summary of the frozen aggregate.
// A failing analyst is recorded on the run and never fails the pipeline.
type AnalyzeStep struct {
	analyst analyst.Analyst
	logger  *slog.Logger
}

// NewAnalyzeStep creates an AnalyzeStep.
func NewAnalyzeStep(a analyst.Analyst, logger *slog.Logger) *AnalyzeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeStep{analyst: a, logger: logger}
}

// Name returns the step name.
func (s *AnalyzeStep) Name() string {
	return "analyze"
}

// Do executes the analyze step.
func (s *AnalyzeStep) Do(ctx context.Context, run *Run) error {
	if !run.Aggregate.Frozen() {
		return fmt.Errorf("%w: analysis requires a frozen aggregate", model.ErrAggregateConsistency)
	}
	payload, err := report.MarshalAggregate(run.Aggregate)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	a, err := s.analyst.Analyze(ctx, payload)
	if err != nil {
		if !errors.Is(err, model.ErrAnalysisService) {
			err = fmt.Errorf("%w: %w", model.ErrAnalysisService, err)
		}
		s.logger.Warn("analysis failed", "run", run.RunID(), "error", err)
		run.AnalysisErr = err
		return nil
	}
	run.Analysis = a
	return nil
}
