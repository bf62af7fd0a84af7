// Package probe performs the single network check behind every piece of
// evidence: one request to one source for one subject.
//
// A Prober returns the raw response shape (status, final URL, headers and a
// size-capped body) and leaves the interpretation to the adapters. Errors
// are returned as-is; the scheduler classifies them as timeouts or
// transport failures.
package probe
