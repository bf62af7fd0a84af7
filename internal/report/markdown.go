package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/idhunt/internal/model"
)

// MarkdownWriter outputs dossiers in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the dossier in Markdown format.
func (w *MarkdownWriter) Write(d *Dossier) (int, error) {
	md := markdown.NewMarkdown(w.output)
	agg := d.Aggregate

	w.writeHeader(md, agg)
	w.writeSummary(md, agg)
	w.writeAnalysis(md, d)
	for _, seed := range agg.Inputs.Seeds {
		w.writeSeed(md, agg, seed)
	}
	w.writeExcluded(md, agg)
	w.writeFooter(md, d.Version)

	return len(md.String()), md.Build()
}

// writeHeader writes the dossier header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, agg *model.Aggregate) {
	md.H1("idhunt Dossier")
	md.PlainText("")

	seeds := make([]string, len(agg.Inputs.Seeds))
	for i, s := range agg.Inputs.Seeds {
		seeds[i] = "`" + s.Value + "`"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + agg.RunID + "`"},
			{"Created", agg.CreatedAt.Format("2006-01-02 15:04:05 MST")},
			{"Seeds", strings.Join(seeds, ", ")},
			{"Mode", modeText(agg.Policy)},
			{"Status", statusText(agg)},
		},
	})
	md.PlainText("")
}

func modeText(p model.Policy) string {
	mode := "default"
	if p.Strict {
		mode = fmt.Sprintf("strict (demote < %.2f, exclude < %.2f)", p.DemoteThreshold, p.ExcludeThreshold)
	}
	return mode + ", nsfw " + string(p.NSFW)
}

func statusText(agg *model.Aggregate) string {
	if agg.Partial {
		return "⚠️ Cancelled (partial results)"
	}
	return "✅ Complete"
}

// writeSummary writes the outcome counters and chart.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, agg *model.Aggregate) {
	md.H2("Summary")
	md.PlainText("")

	total := agg.Total()
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"🟢 Found", strconv.Itoa(total.Found)},
			{"🟡 Ambiguous", strconv.Itoa(total.Ambiguous)},
			{"⚪ Not found", strconv.Itoa(total.NotFound)},
			{"🔴 Error", strconv.Itoa(total.Error)},
			{"⚫ Excluded", strconv.Itoa(total.Excluded)},
			{"**Total**", "**" + strconv.Itoa(total.Total()) + "**"},
		},
	})
	md.PlainText("")

	if total.Found+total.Ambiguous > 0 {
		w.writePieChart(md, total)
	}

	switch {
	case agg.Partial:
		md.Warningf("The run was cancelled. %d probe result(s) were collected before cancellation.", total.Total())
	case total.Found > 0:
		md.Importantf("%d profile(s) found across %d source(s).", total.Found, countSources(agg.Matches(model.OutcomeFound)))
	case total.Ambiguous > 0:
		md.Note("No confirmed profile. Ambiguous results need manual review.")
	default:
		md.Tip("No profile found for the given identifiers.")
	}
	md.PlainText("")
}

func countSources(rs []model.Resolution) int {
	seen := make(map[string]bool)
	for _, r := range rs {
		seen[r.Source] = true
	}
	return len(seen)
}

// writePieChart writes a mermaid pie chart of the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, c model.Counters) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcome Distribution"),
		piechart.WithShowData(true),
	)

	for _, part := range []struct {
		label string
		n     int
	}{
		{"Found", c.Found},
		{"Ambiguous", c.Ambiguous},
		{"Not found", c.NotFound},
		{"Error", c.Error},
		{"Excluded", c.Excluded},
	} {
		if part.n > 0 {
			chart.LabelAndIntValue(part.label, uint64(part.n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAnalysis writes the AI analysis section.
func (w *MarkdownWriter) writeAnalysis(md *markdown.Markdown, d *Dossier) {
	md.H2("Analysis")
	md.PlainText("")

	switch {
	case d.Analysis != nil:
		a := d.Analysis
		md.Table(markdown.TableSet{
			Header: []string{"Model", "Confidence", "Generated"},
			Rows: [][]string{{
				a.Model,
				strconv.FormatFloat(a.Confidence, 'f', 2, 64),
				a.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
			}},
		})
		md.PlainText("")
		md.PlainText(a.Summary)
		md.PlainText("")
		if len(a.Highlights) > 0 {
			md.BulletList(a.Highlights...)
			md.PlainText("")
		}
		md.Note("AI analysis is decision support. Validate it against the evidence below.")
	case d.AnalysisError != "":
		md.Warningf("AI analysis failed: %s", d.AnalysisError)
	default:
		md.PlainText("AI analysis was not executed for this dossier.")
	}
	md.PlainText("")
}

// writeSeed writes the matches attributed to one seed.
func (w *MarkdownWriter) writeSeed(md *markdown.Markdown, agg *model.Aggregate, seed model.Identifier) {
	md.H2(fmt.Sprintf("%s `%s`", kindTitle(seed.Kind), seed.Value))
	md.PlainText("")

	c := agg.Attributed[seed.Key()]
	md.PlainTextf("Found %d, ambiguous %d, not found %d, errors %d, excluded %d.",
		c.Found, c.Ambiguous, c.NotFound, c.Error, c.Excluded)
	md.PlainText("")

	var aliases []string
	for _, l := range agg.Links {
		if l.Origin == seed.Key() {
			aliases = append(aliases, fmt.Sprintf("`%s` (%s)", l.Alias, l.Reason))
		}
	}
	if len(aliases) > 0 {
		md.PlainText("Derived aliases:")
		md.PlainText("")
		md.BulletList(aliases...)
		md.PlainText("")
	}

	for _, section := range []struct {
		outcome model.Outcome
		header  string
	}{
		{model.OutcomeFound, "### 🟢 Found"},
		{model.OutcomeAmbiguous, "### 🟡 Ambiguous"},
	} {
		rs := attributed(agg, seed.Key(), agg.Matches(section.outcome))
		if len(rs) == 0 {
			continue
		}
		md.PlainText(section.header)
		md.PlainText("")
		w.writeResolutionTable(md, rs)
	}
}

func kindTitle(kind model.IdentifierKind) string {
	if kind == model.KindEmail {
		return "Email"
	}
	return "Username"
}

func attributed(agg *model.Aggregate, seed string, rs []model.Resolution) []model.Resolution {
	var out []model.Resolution
	for _, r := range rs {
		if origin, ok := agg.Origin(r.Subject); ok && origin == seed {
			out = append(out, r)
		}
	}
	return out
}

// writeResolutionTable writes one row per resolution.
func (w *MarkdownWriter) writeResolutionTable(md *markdown.Markdown, rs []model.Resolution) {
	rows := make([][]string, len(rs))
	for i, r := range rs {
		rows[i] = []string{
			r.Source,
			subjectValue(r.Subject),
			orDash(r.URL),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			orDash(truncateString(strings.Join(r.Reasons, ", "), 60)),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Source", "Subject", "URL", "Score", "Reasons"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeExcluded lists what the heuristic filter dropped.
func (w *MarkdownWriter) writeExcluded(md *markdown.Markdown, agg *model.Aggregate) {
	excluded := agg.Excluded()
	if len(excluded) == 0 {
		return
	}
	md.H2("Excluded")
	md.PlainText("")

	lines := make([]string, len(excluded))
	for i, r := range excluded {
		lines[i] = fmt.Sprintf("%s / %s (%s): %s", r.Source, subjectValue(r.Subject), r.Outcome, strings.Join(r.Reasons, ", "))
	}
	md.Details(fmt.Sprintf("%d excluded result(s)", len(excluded)), strings.Join(lines, "\n"))
	md.PlainText("")
}

// writeFooter writes the dossier footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, version string) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Dossier generated by [idhunt %s](https://github.com/nao1215/idhunt) from publicly available evidence*", version)
}

// subjectValue strips the kind prefix of a subject key.
func subjectValue(key string) string {
	if _, value, ok := strings.Cut(key, ":"); ok {
		return value
	}
	return key
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
