// Package report serializes and renders dossiers.
//
// A Dossier wraps a frozen Identity Aggregate with the optional AI
// analysis. Three writers consume it:
//   - JSONWriter: stable, re-decodable JSON (the re-analysis entry point)
//   - MarkdownWriter: a shareable dossier with a mermaid outcome chart
//   - TableWriter: the terminal profile table
//
// Writers never mutate the aggregate.
package report
