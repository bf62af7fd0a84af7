package model

import "errors"

// Fault taxonomy of a correlation run.
//
// Probe faults (ErrProbeTimeout, ErrProbeTransport) are absorbed into
// error-outcome Evidence and never abort a run. ErrInvalidInput is returned
// before any probe is issued. ErrAggregateConsistency is fatal and nothing
// is exported. ErrAnalysisService is recorded next to the aggregate and
// export proceeds without analysis content.
var (
	// ErrInvalidInput is returned when the Input Set is empty or a seed is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProbeTimeout is recorded when a probe exceeds its per-probe timeout.
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrProbeTransport is recorded for every non-timeout probe failure:
	// connection errors, TLS errors, unreadable or malformed responses.
	ErrProbeTransport = errors.New("probe transport failure")

	// ErrAggregateConsistency is returned when evidence refers to a subject
	// that is neither a seed nor an alias reachable through exactly one link,
	// or when an aggregate is mutated after it was frozen.
	ErrAggregateConsistency = errors.New("aggregate consistency violation")

	// ErrAnalysisService is returned when the AI analyst fails.
	ErrAnalysisService = errors.New("analysis service failure")
)
