package report

import (
	"io"
)

// JSONWriter outputs dossiers in JSON format.
// The output is what DecodeDossier reads back.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// keepRaw keeps analysis.raw in the output.
	keepRaw bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables two-space indented JSON. Evidence payloads are
// indented as well; DecodeDossier compacts them again.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// WithRawAnalysis keeps the raw AI provider payload in the output.
func WithRawAnalysis(keep bool) JSONWriterOption {
	return func(w *JSONWriter) {
		w.keepRaw = keep
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the dossier.
func (w *JSONWriter) Write(d *Dossier) (int, error) {
	out := d
	if !w.keepRaw && d.Analysis != nil && d.Analysis.Raw != nil {
		stripped := *d
		analysis := *d.Analysis
		analysis.Raw = nil
		stripped.Analysis = &analysis
		out = &stripped
	}

	indent := ""
	if w.indent {
		indent = "  "
	}
	data, err := encode(out, indent)
	if err != nil {
		return 0, err
	}
	return w.output.Write(data)
}
