package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/database"
	"github.com/nao1215/idhunt/internal/model"
)

// Constants for history display.
const (
	defaultHistoryLimit = 20
	shortIDLength       = 8
	historyDateLayout   = "2006-01-02 15:04:05"
)

// NewHistoryCmd creates the history command.
// This command lists and inspects runs stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and delete stored runs",
		Long: `History displays the runs stored in the local database.

Without flags the most recent runs are listed with their seeds and
tallies. A run ID may be abbreviated to any unique prefix.

Examples:
  # List the 20 most recent runs
  idhunt history

  # List every run as JSON
  idhunt history --limit 0 --json

  # Print a stored dossier as Markdown
  idhunt history --show 3f2a --markdown

  # Show every stored verdict for a username across runs
  idhunt history --subject torvalds

  # Only the GitHub verdicts of an email and its aliases
  idhunt history --subject linus@example.com --source github

  # Delete a run
  idhunt history --delete 3f2a`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists every run)")
	cmd.Flags().String("show", "",
		"Print the stored dossier of a run")
	cmd.Flags().String("subject", "",
		"Show the stored verdicts of a username or email across runs")
	cmd.Flags().String("source", "",
		"Restrict --subject to one source")
	cmd.Flags().String("delete", "",
		"Delete a stored run")
	cmd.Flags().String("db-dir", "",
		"Directory of the run history database (default: XDG data directory)")
	addOutputFlags(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return fmt.Errorf("configuration error: %w", config.ErrConflictingReportFormats)
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	show, err := cmd.Flags().GetString("show")
	if err != nil {
		return err
	}
	subject, err := cmd.Flags().GetString("subject")
	if err != nil {
		return err
	}
	sourceName, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	deleteID, err := cmd.Flags().GetString("delete")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database
	var subjectKey string
	if subject != "" {
		subjectKey, err = parseSubject(subject)
		if err != nil {
			return err
		}
	} else if sourceName != "" {
		return errors.New("--source requires --subject")
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case deleteID != "":
		dossier, err := db.LoadRun(ctx, deleteID)
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		runID := dossier.Aggregate.RunID
		if err := db.DeleteRun(ctx, runID); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		fmt.Fprintf(out, "Deleted run %s\n", runID)
		return nil
	case show != "":
		dossier, err := db.LoadRun(ctx, show)
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		return outputReport(cfg, dossier, out)
	case subjectKey != "":
		return listSubjectHistory(ctx, db, out, subjectKey, sourceName, cfg.JSONReport)
	default:
		return listRuns(ctx, db, out, limit, cfg.JSONReport)
	}
}

// parseSubject turns a username, an email or a subject key
// ("username:torvalds", "email:linus@example.com") into a subject key.
func parseSubject(s string) (string, error) {
	kind, value, ok := strings.Cut(s, ":")
	if ok {
		switch model.IdentifierKind(kind) {
		case model.KindUsername:
			s = value
		case model.KindEmail:
			s = value
			if !strings.Contains(s, "@") {
				return "", fmt.Errorf("%w: email %q is missing '@'", model.ErrInvalidInput, value)
			}
		}
	}

	var (
		id  model.Identifier
		err error
	)
	if strings.Contains(s, "@") {
		id, err = model.NewEmail(s)
	} else {
		id, err = model.NewUsername(s)
	}
	if err != nil {
		return "", err
	}
	return id.Key(), nil
}

// listRuns lists the stored runs, newest first.
func listRuns(ctx context.Context, db *database.RunDB, out io.Writer, limit int, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, runsJSON(runs))
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'idhunt scan <username>' or 'idhunt hunt' to start a run.")
		return nil
	}

	tw := newTable(out)
	tw.AppendHeader(table.Row{"Run", "Date", "Seeds", "Mode", "Found", "Ambiguous", "Not found", "Errors", "Excluded", "AI"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			shortID(r.RunID),
			r.CreatedAt.Local().Format(historyDateLayout),
			strings.Join(r.Seeds, ", "),
			runMode(r),
			r.Totals.Found,
			r.Totals.Ambiguous,
			r.Totals.NotFound,
			r.Totals.Error,
			r.Totals.Excluded,
			yesNo(r.Analyzed),
		})
	}
	tw.SetColumnConfigs(numericColumns(5, 9))
	tw.Render()

	fmt.Fprintf(out, "\n%d runs. Use 'idhunt history --show <run>' to print a dossier.\n", len(runs))
	return nil
}

// listSubjectHistory lists the stored verdicts of a subject across runs.
func listSubjectHistory(ctx context.Context, db *database.RunDB, out io.Writer, subject, sourceName string, jsonOutput bool) error {
	records, err := db.SubjectHistory(ctx, subject, sourceName)
	if err != nil {
		return fmt.Errorf("failed to get subject history: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, recordsJSON(records))
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No stored verdicts found for %s\n", subject)
		return nil
	}

	fmt.Fprintf(out, "Verdicts for %s (%d):\n\n", subject, len(records))
	tw := newTable(out)
	tw.AppendHeader(table.Row{"Run", "Date", "Source", "Subject", "Outcome", "Score", "URL"})
	for _, r := range records {
		outcome := string(r.FinalOutcome)
		if r.Excluded {
			outcome += " (excluded)"
		}
		tw.AppendRow(table.Row{
			shortID(r.RunID),
			r.CreatedAt.Local().Format(historyDateLayout),
			r.Source,
			r.Subject,
			outcome,
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			r.URL,
		})
	}
	tw.SetColumnConfigs(numericColumns(6, 6))
	tw.Render()
	return nil
}

func newTable(out io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	return tw
}

// numericColumns right-aligns the columns first..last (1-based).
func numericColumns(first, last int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, last-first+1)
	for n := first; n <= last; n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	return configs
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func runMode(r database.RunMetadata) string {
	mode := "default"
	if r.Strict {
		mode = "strict"
	}
	if r.Partial {
		mode += ", partial"
	}
	return mode
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// runJSON is the JSON shape of a listed run.
type runJSON struct {
	RunID     string         `json:"run_id"`
	CreatedAt string         `json:"created_at"`
	Seeds     []string       `json:"seeds"`
	Strict    bool           `json:"strict"`
	Partial   bool           `json:"partial,omitempty"`
	Analyzed  bool           `json:"analyzed"`
	Totals    model.Counters `json:"totals"`
}

func runsJSON(runs []database.RunMetadata) []runJSON {
	out := make([]runJSON, 0, len(runs))
	for _, r := range runs {
		out = append(out, runJSON{
			RunID:     r.RunID,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
			Seeds:     r.Seeds,
			Strict:    r.Strict,
			Partial:   r.Partial,
			Analyzed:  r.Analyzed,
			Totals:    r.Totals,
		})
	}
	return out
}

// verdictJSON is the JSON shape of a stored verdict.
type verdictJSON struct {
	RunID     string        `json:"run_id"`
	CreatedAt string        `json:"created_at"`
	Source    string        `json:"source"`
	Subject   string        `json:"subject"`
	Origin    string        `json:"origin"`
	Outcome   model.Outcome `json:"final_outcome"`
	Score     float64       `json:"score"`
	Excluded  bool          `json:"excluded,omitempty"`
	URL       string        `json:"url,omitempty"`
}

func recordsJSON(records []database.ResolutionRecord) []verdictJSON {
	out := make([]verdictJSON, 0, len(records))
	for _, r := range records {
		out = append(out, verdictJSON{
			RunID:     r.RunID,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
			Source:    r.Source,
			Subject:   r.Subject,
			Origin:    r.Origin,
			Outcome:   r.FinalOutcome,
			Score:     r.Score,
			Excluded:  r.Excluded,
			URL:       r.URL,
		})
	}
	return out
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
