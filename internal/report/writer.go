package report

import (
	"io"
)

// Writer defines the interface for dossier output.
type Writer interface {
	// Write outputs the dossier to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(d *Dossier) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the dossier to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(d *Dossier) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(d)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Format is an output format name accepted by the CLI.
type Format string

const (
	// FormatTable is the terminal table.
	FormatTable Format = "table"

	// FormatJSON is the JSON dossier.
	FormatJSON Format = "json"

	// FormatMarkdown is the Markdown dossier.
	FormatMarkdown Format = "markdown"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatTable, FormatJSON, FormatMarkdown:
		return true
	default:
		return false
	}
}

// NewWriter returns the writer for format.
func NewWriter(format Format, output io.Writer) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint())
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewTableWriter(output)
	}
}
