// Package model defines the data structures shared by every stage of an
// idhunt run.
//
// This package contains the following main types:
//   - Identifier: a username or email subject, seed or derived alias
//   - InputSet and Deriver: the seeds of a run and the aliases derived from them
//   - Link: records why a derived alias was probed
//   - Evidence: one immutable fact produced by one probe
//   - Resolution: the verdict for one (source, subject) pair
//   - Aggregate: the frozen Identity Aggregate handed to reports and the analyst
//
// Models live in their own package so that the scheduler, correlation
// engine, heuristic filter and report writers can share them without
// import cycles. Every type is serializable to JSON for export, storage
// and re-analysis.
package model
