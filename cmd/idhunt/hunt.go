package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nao1215/idhunt/internal/adapter"
	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/database"
	idlog "github.com/nao1215/idhunt/internal/log"
	"github.com/nao1215/idhunt/internal/metrics"
	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/pipeline"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/report"
	"github.com/nao1215/idhunt/internal/scheduler"
)

// NewHuntCmd creates the hunt command.
func NewHuntCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hunt [username|email]...",
		Short: "Correlate usernames and emails across all configured sources",
		Long: `Hunt probes every configured source for the given usernames and email
addresses and correlates the results into one identity aggregate.

Seeds are given with --username and --email (repeatable or comma
separated). Positional arguments containing "@" are emails, the others
usernames.

Sources are the builtin scrapers and APIs, plus optional WhatsMyName
lists and the Sherlock manifest. Strict mode re-scores every match by
source reliability and adapter signals; low scores are demoted to
ambiguous or excluded from the tallies (they stay in the audit trail).

Examples:
  # Hunt a username and an email
  idhunt hunt -u torvalds -e torvalds@example.com

  # Add a WhatsMyName list and filter in strict mode
  idhunt hunt --site-list wmn-data.json --strict torvalds

  # Probe the Sherlock manifest through Tor and export JSON
  idhunt hunt --sherlock --tor --json -o out/torvalds.json torvalds

  # Pivot on the email local part and on handles found in profiles
  idhunt hunt -e linus@example.com --derive-local-part --pivot`,
		Args: cobra.ArbitraryArgs,
		RunE: runHuntCmd,
	}

	cmd.Flags().StringSliceP("username", "u", nil,
		"Username seed (repeatable or comma separated)")
	cmd.Flags().StringSliceP("email", "e", nil,
		"Email seed (repeatable or comma separated)")
	cmd.Flags().BoolP("derive-local-part", "l", false,
		"Also probe the local part of every email seed as a username")
	addSourceFlags(cmd)
	addAllFlags(cmd)

	return cmd
}

// runHuntCmd executes the hunt command.
func runHuntCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	usernames, err := cmd.Flags().GetStringSlice("username")
	if err != nil {
		return err
	}
	emails, err := cmd.Flags().GetStringSlice("email")
	if err != nil {
		return err
	}
	for _, arg := range args {
		if strings.Contains(arg, "@") {
			emails = append(emails, arg)
		} else {
			usernames = append(usernames, arg)
		}
	}
	cfg.Usernames = usernames
	cfg.Emails = emails

	return startHunt(cmd, cfg)
}

// startHunt validates cfg and runs the hunt with signal handling.
// It is shared by hunt, scan and scan-email.
func startHunt(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := idlog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	_, err := executeHunt(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return err
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// executeHunt runs one correlation run end to end: network, sources,
// probing, correlation, optional analysis, report, history and metrics.
// Progress messages go to status, the report to stdout unless a report
// file is configured.
func executeHunt(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, status io.Writer) (*report.Dossier, error) {
	inputs, err := model.NewInputSet(cfg.Usernames, cfg.Emails)
	if err != nil {
		return nil, err
	}

	logger.Info("starting hunt",
		"seeds", len(inputs.Seeds),
		"strict", cfg.Strict,
		"nsfw", cfg.NSFW,
		"concurrency", cfg.Concurrency,
		"saveToDB", cfg.SaveToDB,
	)

	// Open database connection if saving is enabled
	var db *database.RunDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	nw, err := openNetwork(ctx, cfg, logger, status)
	if err != nil {
		return nil, err
	}
	defer nw.Close(logger)
	httpClient := nw.client.HTTPClient()

	descs, err := loadDescriptors(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	prober := probe.NewHTTPProber(httpClient,
		probe.WithUserAgent(cfg.UserAgent),
		probe.WithMaxBodySize(cfg.MaxBodySize),
	)
	sched := scheduler.New(prober,
		scheduler.WithConcurrency(cfg.Concurrency),
		scheduler.WithTimeout(cfg.Timeout),
		scheduler.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		scheduler.WithNSFWPolicy(cfg.NSFW),
		scheduler.WithLogger(logger),
	)

	opts := []pipeline.HunterOption{
		pipeline.WithHunterLogger(logger),
		pipeline.WithPartialResults(cfg.PartialResults),
	}

	var probeMetrics *metrics.Probes
	if cfg.MetricsFile != "" {
		probeMetrics = metrics.NewProbes()
		opts = append(opts, pipeline.WithHunterMetrics(probeMetrics))
	}

	if cfg.AI {
		client, err := analyst.NewClient(cfg.AnalystConfig(), httpClient, analyst.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create analyst: %w", err)
		}
		opts = append(opts, pipeline.WithAnalyst(client))
	}

	hunter := pipeline.NewHunter(sched, adapter.NewRegistry(), opts...)
	run := pipeline.NewRun(inputs, descs, cfg.Policy())

	fmt.Fprintf(status, "Hunting %s on %d sources...\n", seedList(inputs), len(descs))
	startTime := time.Now()

	if err := hunter.Hunt(ctx, run); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("hunt cancelled (use --partial to keep collected evidence): %w", err)
		}
		return nil, fmt.Errorf("hunt failed: %w", err)
	}

	elapsed := time.Since(startTime)
	fmt.Fprintf(status, "Hunt completed in %s (%d probes, %d errors", elapsed.Round(time.Millisecond),
		run.Stats.Dispatched, run.Stats.Errors)
	if run.Stats.Pivots > 0 {
		fmt.Fprintf(status, ", %d pivots", run.Stats.Pivots)
	}
	fmt.Fprintln(status, ")")
	if run.Partial {
		fmt.Fprintf(status, "Run interrupted: %d probes cancelled, keeping partial results\n", run.Stats.Cancelled)
	}

	dossier := report.NewDossier(run.Aggregate, getVersion())
	dossier.SetAnalysis(run.Analysis, run.AnalysisErr)
	if run.AnalysisErr != nil {
		fmt.Fprintf(status, "Warning: analysis unavailable: %v\n", run.AnalysisErr)
	}

	if err := outputReport(cfg, dossier, stdout); err != nil {
		return dossier, fmt.Errorf("report failed: %w", err)
	}

	if err := saveDossier(ctx, db, dossier, logger); err != nil {
		logger.Error("failed to save run", "run", dossier.Aggregate.RunID, "error", err)
	}

	if probeMetrics != nil {
		if err := probeMetrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	return dossier, nil
}

// seedList renders the seeds for progress messages.
func seedList(inputs *model.InputSet) string {
	keys := make([]string, 0, len(inputs.Seeds))
	for _, id := range inputs.Seeds {
		keys = append(keys, id.Key())
	}
	return strings.Join(keys, ", ")
}

// reportFormat picks the output format. The terminal table is replaced by
// JSON when stdout is not a terminal and no file is written.
func reportFormat(cfg *config.Config, stdout io.Writer) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	case cfg.ReportFile == "" && !isTerminal(stdout):
		return report.FormatJSON
	default:
		return report.FormatTable
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newReportWriter builds the writer for format.
func newReportWriter(cfg *config.Config, format report.Format, output io.Writer) report.Writer {
	switch format {
	case report.FormatJSON:
		return report.NewJSONWriter(output,
			report.WithPrettyPrint(),
			report.WithRawAnalysis(cfg.KeepRawAnalysis),
		)
	case report.FormatTable:
		return report.NewTableWriter(output, report.WithAmbiguous(cfg.ShowAmbiguous))
	default:
		return report.NewWriter(format, output)
	}
}

// outputReport outputs the dossier in the requested format.
func outputReport(cfg *config.Config, dossier *report.Dossier, stdout io.Writer) error {
	format := reportFormat(cfg, stdout)

	// Determine output destination
	output := stdout
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Dossiers name real people; keep them readable by the owner only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(cfg, format, output).Write(dossier)
	return err
}

// saveDossier saves the dossier to the database if enabled.
// If db is nil, this function is a no-op.
func saveDossier(ctx context.Context, db *database.RunDB, dossier *report.Dossier, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	if err := db.SaveRun(context.WithoutCancel(ctx), dossier); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	logger.Info("run saved to database", "run", dossier.Aggregate.RunID)
	return nil
}
