// Package scheduler fans probes out concurrently and feeds their results to
// a single consumer.
//
// Every probe runs in its own goroutine under a process-wide concurrency
// ceiling, an optional request rate limit and a per-probe timeout. Workers
// never touch shared state: each one sends exactly one Result on a channel,
// and Run delivers results to the consumer callback on the calling
// goroutine. The callback can return follow-up tasks (derived aliases),
// which are dispatched in the same run.
package scheduler
