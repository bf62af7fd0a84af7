// Package adapter normalizes raw probe results into Evidence.
//
// Every source kind has one Adapter. The Registry dispatches on the
// descriptor kind, turns probe failures into error-outcome evidence and
// builds the immutable Evidence record from the adapter's Verdict.
//
// Adapters share one policy: a source that cannot tell a real profile from
// a generic landing page reports ambiguous, never found, unless the subject
// appears in a hit-indicating context of the page (title, og:title,
// canonical URL or final URL path).
package adapter
