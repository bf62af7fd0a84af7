package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/correlate"
	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/source"
)

// Stats counts what happened to the probes of a run.
type Stats struct {
	Dispatched int `json:"dispatched"`
	Errors     int `json:"errors"`
	Cancelled  int `json:"cancelled"`
	Pivots     int `json:"pivots"`
}

// Run is the state of one correlation run shared by the steps.
type Run struct {
	// Inputs are the seeds and the aliases derived so far.
	Inputs *model.InputSet

	// Descriptors are the sources to probe.
	Descriptors []source.Descriptor

	// Deriver creates aliases and their links.
	Deriver *model.Deriver

	// Engine holds the ingested evidence.
	Engine *correlate.Engine

	// Aggregate is the run's Identity Aggregate; frozen by AssembleStep.
	Aggregate *model.Aggregate

	// Stats are updated by ProbeStep.
	Stats Stats

	// Partial is set when the run was cancelled and results are kept.
	Partial bool

	// Analysis and AnalysisErr are set by AnalyzeStep.
	Analysis    *analyst.Analysis
	AnalysisErr error

	// PerformedSteps lists the names of the steps that ran.
	PerformedSteps []string

	// Error is the last step error.
	Error error
}

// NewRun creates the state of a run with a fresh run ID.
func NewRun(inputs *model.InputSet, descriptors []source.Descriptor, policy model.Policy) *Run {
	return newRun(uuid.NewString(), time.Now(), inputs, descriptors, policy)
}

func newRun(runID string, createdAt time.Time, inputs *model.InputSet, descriptors []source.Descriptor, policy model.Policy) *Run {
	return &Run{
		Inputs:      inputs,
		Descriptors: descriptors,
		Deriver:     model.NewDeriver(inputs, nil),
		Engine:      correlate.NewEngine(inputs),
		Aggregate:   model.NewAggregate(runID, createdAt, policy, inputs),
	}
}

// Policy returns the run policy.
func (r *Run) Policy() model.Policy {
	return r.Aggregate.Policy
}

// RunID returns the run identifier.
func (r *Run) RunID() string {
	return r.Aggregate.RunID
}
