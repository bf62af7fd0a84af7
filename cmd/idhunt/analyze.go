package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/database"
	idlog "github.com/nao1215/idhunt/internal/log"
	"github.com/nao1215/idhunt/internal/report"
)

// errNoDossier is returned when analyze is given nothing to analyze.
var errNoDossier = errors.New("specify a dossier file, --run <id> or --latest")

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [dossier.json]",
		Short: "Run the AI analyst on an exported dossier or a stored run",
		Long: `Analyze sends a frozen identity aggregate to the AI analyst and prints the
dossier with the analysis attached. The aggregate is read from a JSON
dossier exported with --json, or from the run history.

The analyst talks to an OpenAI-compatible API. The API key is read from
the ` + config.EnvAIAPIKey + ` environment variable.

A stored run is updated with the new analysis. A dossier file is only
stored when --save is given.

Examples:
  # Analyze an exported dossier
  idhunt analyze torvalds.json

  # Analyze the latest stored run and print Markdown
  idhunt analyze --latest --markdown

  # Analyze a stored run by ID prefix with a local model
  idhunt analyze --run 3f2a --ai-base-url http://localhost:11434/v1 --ai-model llama3.1`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyzeCmd,
	}

	cmd.Flags().StringP("run", "r", "",
		"Analyze a stored run by ID or unique ID prefix")
	cmd.Flags().BoolP("latest", "L", false,
		"Analyze the most recent stored run")
	cmd.Flags().Bool("save", false,
		"Store an analyzed dossier file in the run history")
	cmd.Flags().String("db-dir", "",
		"Directory of the run history database (default: XDG data directory)")
	cmd.Flags().String("proxy", "",
		"Route analyst requests through a SOCKS5 proxy")
	addAIFlags(cmd)
	addOutputFlags(cmd)

	return cmd
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	latest, err := cmd.Flags().GetBool("latest")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database
	selected := 0
	for _, set := range []bool{len(args) == 1, runID != "", latest} {
		if set {
			selected++
		}
	}
	switch {
	case selected == 0:
		return errNoDossier
	case selected > 1:
		return errors.New("a dossier file, --run and --latest are mutually exclusive")
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.AI = true
	if !changed(cmd, "save") {
		cfg.SaveToDB = false
	}
	if err := cfg.ValidateSettings(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := idlog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	var (
		dossier *report.Dossier
		db      *database.RunDB
	)
	if len(args) == 1 {
		dossier, err = readDossierFile(args[0])
		if err != nil {
			return err
		}
	} else {
		cfg.SaveToDB = true
	}

	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.Options{CreateIfNotExists: len(args) == 1, EnableWAL: true})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	switch {
	case runID != "":
		dossier, err = db.LoadRun(ctx, runID)
	case latest:
		dossier, err = db.LatestRun(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	nw, err := openNetwork(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer nw.Close(logger)

	client, err := analyst.NewClient(cfg.AnalystConfig(), nw.client.HTTPClient(), analyst.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create analyst: %w", err)
	}

	analysisErr := analyzeDossier(ctx, client, dossier, logger, cmd.ErrOrStderr())

	if err := outputReport(cfg, dossier, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("report failed: %w", err)
	}

	if analysisErr == nil {
		if err := saveDossier(ctx, db, dossier, logger); err != nil {
			return err
		}
	}
	return analysisErr
}

// readDossierFile decodes a JSON dossier or bare aggregate.
func readDossierFile(path string) (*report.Dossier, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided dossier path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open dossier: %w", err)
	}
	defer f.Close()

	dossier, err := report.DecodeDossier(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dossier %s: %w", path, err)
	}
	return dossier, nil
}

// analyzeDossier attaches a fresh analysis to the dossier. A failed
// analysis is recorded in the dossier and returned.
func analyzeDossier(ctx context.Context, a analyst.Analyst, dossier *report.Dossier, logger *slog.Logger, status io.Writer) error {
	if dossier.Aggregate.Partial {
		fmt.Fprintln(status, "Warning: the run was interrupted; the analysis covers partial results only")
	}

	payload, err := report.MarshalAggregate(dossier.Aggregate)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	fmt.Fprintf(status, "Analyzing run %s...\n", dossier.Aggregate.RunID)
	analysis, err := a.Analyze(ctx, payload)
	dossier.SetAnalysis(analysis, err)
	if err != nil {
		logger.Warn("analysis failed", "run", dossier.Aggregate.RunID, "error", err)
		return fmt.Errorf("analysis failed: %w", err)
	}
	return nil
}
