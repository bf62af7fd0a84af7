// Package correlate ingests evidence from every source and resolves it into
// one verdict per (source, subject) pair.
//
// The engine is not safe for concurrent use. The pipeline feeds it from the
// single goroutine that consumes probe results, so ordering between
// ingestions never matters: Resolve sorts everything it returns.
package correlate
