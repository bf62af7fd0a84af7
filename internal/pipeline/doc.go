// Package pipeline executes one correlation run as a sequence of steps.
//
// A run flows through two pipelines. The collection pipeline derives
// local-part aliases and probes every source through the scheduler,
// feeding normalized evidence into the correlation engine. The assembly
// pipeline resolves the evidence, applies the heuristic filter, freezes
// the aggregate and optionally asks the AI analyst for a summary.
//
// Hunter ties both together and decides what a cancelled run produces:
// nothing by default, or a partial aggregate when partial results are
// enabled.
package pipeline
