package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nao1215/idhunt/internal/model"
)

// TableWriter renders the terminal profile table: one table per seed with
// its found and ambiguous results, followed by the run totals.
type TableWriter struct {
	baseWriter

	// showAmbiguous includes ambiguous rows.
	showAmbiguous bool
}

// TableWriterOption configures a TableWriter.
type TableWriterOption func(*TableWriter)

// WithAmbiguous controls whether ambiguous results are listed.
func WithAmbiguous(show bool) TableWriterOption {
	return func(w *TableWriter) {
		w.showAmbiguous = show
	}
}

// NewTableWriter creates a TableWriter that outputs to the given writer.
func NewTableWriter(output io.Writer, opts ...TableWriterOption) *TableWriter {
	w := &TableWriter{
		baseWriter:    newBaseWriter(output),
		showAmbiguous: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders the dossier.
func (w *TableWriter) Write(d *Dossier) (int, error) {
	var sb strings.Builder
	agg := d.Aggregate

	for _, seed := range agg.Inputs.Seeds {
		rows := w.rows(agg, seed.Key())
		fmt.Fprintf(&sb, "%s %s\n", kindTitle(seed.Kind), seed.Value)
		if len(rows) == 0 {
			sb.WriteString("  no profiles found\n\n")
			continue
		}
		sb.WriteString(renderTable(
			[]string{"Source", "Subject", "Outcome", "Score", "URL"},
			rows,
			map[int]text.Align{3: text.AlignRight},
		))
		sb.WriteString("\n\n")
	}

	total := agg.Total()
	fmt.Fprintf(&sb, "found %d, ambiguous %d, not found %d, errors %d, excluded %d\n",
		total.Found, total.Ambiguous, total.NotFound, total.Error, total.Excluded)
	if agg.Partial {
		sb.WriteString("run cancelled: partial results\n")
	}

	switch {
	case d.Analysis != nil:
		fmt.Fprintf(&sb, "\nAnalysis (%s):\n%s\n", d.Analysis.Model, d.Analysis.Summary)
		for _, h := range d.Analysis.Highlights {
			fmt.Fprintf(&sb, "  - %s\n", h)
		}
	case d.AnalysisError != "":
		fmt.Fprintf(&sb, "\nanalysis failed: %s\n", d.AnalysisError)
	}

	return io.WriteString(w.output, sb.String())
}

func (w *TableWriter) rows(agg *model.Aggregate, seed string) [][]string {
	outcomes := []model.Outcome{model.OutcomeFound}
	if w.showAmbiguous {
		outcomes = append(outcomes, model.OutcomeAmbiguous)
	}

	var rows [][]string
	for _, outcome := range outcomes {
		for _, r := range attributed(agg, seed, agg.Matches(outcome)) {
			rows = append(rows, []string{
				r.Source,
				subjectValue(r.Subject),
				string(r.FinalOutcome),
				strconv.FormatFloat(r.Score, 'f', 2, 64),
				orDash(r.URL),
			})
		}
	}
	return rows
}

// renderTable renders rows with the rounded style; aligns is keyed by the
// zero-based column index.
func renderTable(headers []string, rows [][]string, aligns map[int]text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if a, ok := aligns[i]; ok {
			align = a
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
