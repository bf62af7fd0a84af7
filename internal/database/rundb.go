package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/report"
)

// FileName is the name of the database file inside the database directory.
const FileName = "idhunt.db"

var (
	// ErrRunNotFound is returned when no stored run matches.
	ErrRunNotFound = errors.New("run not found")

	// ErrNotFrozen is returned when saving a dossier whose aggregate was
	// never assembled.
	ErrNotFrozen = errors.New("aggregate is not frozen")
)

// RunDB stores the dossiers of past runs.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a hunt with --save first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *RunDB) createTables() error {
	schema := `
	-- Runs store complete dossiers as JSON
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		seeds TEXT NOT NULL,
		strict INTEGER NOT NULL DEFAULT 0,
		partial INTEGER NOT NULL DEFAULT 0,
		found INTEGER NOT NULL DEFAULT 0,
		ambiguous INTEGER NOT NULL DEFAULT 0,
		not_found INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		excluded INTEGER NOT NULL DEFAULT 0,
		analyzed INTEGER NOT NULL DEFAULT 0,
		dossier_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	-- Resolutions track every verdict of every run
	CREATE TABLE IF NOT EXISTS resolutions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		subject TEXT NOT NULL,
		origin TEXT NOT NULL,
		final_outcome TEXT NOT NULL,
		score REAL NOT NULL,
		excluded INTEGER NOT NULL DEFAULT 0,
		url TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_res_run ON resolutions(run_id);
	CREATE INDEX IF NOT EXISTS idx_res_subject ON resolutions(subject);
	CREATE INDEX IF NOT EXISTS idx_res_origin ON resolutions(origin);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a dossier. Saving a run ID again replaces the stored
// dossier, which is how a re-analysis is recorded.
func (rdb *RunDB) SaveRun(ctx context.Context, d *report.Dossier) error {
	if d == nil || d.Aggregate == nil || !d.Aggregate.Frozen() {
		return ErrNotFrozen
	}
	agg := d.Aggregate

	dossierJSON, err := report.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to serialize dossier: %w", err)
	}

	seeds := make([]string, 0, len(agg.Inputs.Seeds))
	for _, id := range agg.Inputs.Seeds {
		seeds = append(seeds, id.Key())
	}
	total := agg.Total()

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO runs (run_id, created_at, seeds, strict, partial, found, ambiguous, not_found, errors, excluded, analyzed, dossier_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		analyzed = excluded.analyzed,
		dossier_json = excluded.dossier_json
	`
	if _, err := tx.ExecContext(ctx, query,
		agg.RunID,
		agg.CreatedAt.UTC().Format(time.RFC3339Nano),
		strings.Join(seeds, ","),
		agg.Policy.Strict,
		agg.Partial,
		total.Found,
		total.Ambiguous,
		total.NotFound,
		total.Error,
		total.Excluded,
		d.Analysis != nil,
		string(bytes.TrimSpace(dossierJSON)),
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM resolutions WHERE run_id = ?", agg.RunID); err != nil {
		return fmt.Errorf("failed to replace resolutions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO resolutions (run_id, source, subject, origin, final_outcome, score, excluded, url)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare resolution insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range agg.Resolutions {
		origin, _ := agg.Origin(r.Subject)
		if _, err := stmt.ExecContext(ctx, agg.RunID, r.Source, r.Subject, origin, string(r.FinalOutcome), r.Score, r.Excluded, r.URL); err != nil {
			return fmt.Errorf("failed to save resolution %s/%s: %w", r.Source, r.Subject, err)
		}
	}

	return tx.Commit()
}

// LoadRun retrieves a stored dossier by run ID. A unique run ID prefix is
// accepted too.
func (rdb *RunDB) LoadRun(ctx context.Context, runID string) (*report.Dossier, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: empty run ID", ErrRunNotFound)
	}

	var doc string
	err := rdb.db.QueryRowContext(ctx, "SELECT dossier_json FROM runs WHERE run_id = ?", runID).Scan(&doc)
	if err == nil {
		return decode(doc)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := rdb.db.QueryContext(ctx, "SELECT dossier_json FROM runs WHERE substr(run_id, 1, ?) = ? LIMIT 2", len(runID), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	switch len(docs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	case 1:
		return decode(docs[0])
	default:
		return nil, fmt.Errorf("run ID prefix %q matches more than one run", runID)
	}
}

// LatestRun retrieves the most recent stored dossier.
func (rdb *RunDB) LatestRun(ctx context.Context) (*report.Dossier, error) {
	var doc string
	err := rdb.db.QueryRowContext(ctx, `
	SELECT dossier_json FROM runs
	ORDER BY created_at DESC, run_id DESC
	LIMIT 1
	`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return decode(doc)
}

func decode(doc string) (*report.Dossier, error) {
	d, err := report.DecodeDossier(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored run: %w", err)
	}
	return d, nil
}

// RunMetadata contains summary information about a stored run.
// It is used for listing history without loading the dossiers.
type RunMetadata struct {
	// RunID is the run identifier.
	RunID string

	// CreatedAt is when the run started.
	CreatedAt time.Time

	// Seeds are the seed subject keys.
	Seeds []string

	// Strict and Partial are copied from the aggregate.
	Strict  bool
	Partial bool

	// Analyzed is set when the dossier carries an AI analysis.
	Analyzed bool

	// Totals are the aggregate counters.
	Totals model.Counters
}

// ListRuns returns the metadata of stored runs, newest first.
// A limit of zero or less returns every run.
func (rdb *RunDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT run_id, created_at, seeds, strict, partial, analyzed, found, ambiguous, not_found, errors, excluded
	FROM runs
	ORDER BY created_at DESC, run_id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var createdAt, seeds string
		if err := rows.Scan(
			&meta.RunID,
			&createdAt,
			&seeds,
			&meta.Strict,
			&meta.Partial,
			&meta.Analyzed,
			&meta.Totals.Found,
			&meta.Totals.Ambiguous,
			&meta.Totals.NotFound,
			&meta.Totals.Error,
			&meta.Totals.Excluded,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}
		meta.CreatedAt = parseTimestamp(createdAt)
		if seeds != "" {
			meta.Seeds = strings.Split(seeds, ",")
		}
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ResolutionRecord is one stored verdict.
type ResolutionRecord struct {
	RunID        string
	CreatedAt    time.Time
	Source       string
	Subject      string
	Origin       string
	FinalOutcome model.Outcome
	Score        float64
	Excluded     bool
	URL          string
}

// SubjectHistory returns the stored verdicts of a subject key, or of every
// subject attributed to it when it is a seed, newest run first.
// An empty source matches every source.
func (rdb *RunDB) SubjectHistory(ctx context.Context, subject, source string) ([]ResolutionRecord, error) {
	query := `
	SELECT r.run_id, runs.created_at, r.source, r.subject, r.origin, r.final_outcome, r.score, r.excluded, COALESCE(r.url, '')
	FROM resolutions r
	JOIN runs ON runs.run_id = r.run_id
	WHERE (r.subject = ? OR r.origin = ?)
	`
	args := []any{subject, subject}
	if source != "" {
		query += " AND r.source = ?"
		args = append(args, source)
	}
	query += " ORDER BY runs.created_at DESC, r.subject, r.source"

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subject history: %w", err)
	}
	defer rows.Close()

	var results []ResolutionRecord
	for rows.Next() {
		var rec ResolutionRecord
		var createdAt, outcome string
		if err := rows.Scan(
			&rec.RunID,
			&createdAt,
			&rec.Source,
			&rec.Subject,
			&rec.Origin,
			&outcome,
			&rec.Score,
			&rec.Excluded,
			&rec.URL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		rec.CreatedAt = parseTimestamp(createdAt)
		rec.FinalOutcome = model.Outcome(outcome)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// DeleteRun removes a stored run and its resolutions.
func (rdb *RunDB) DeleteRun(ctx context.Context, runID string) error {
	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM resolutions WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to delete resolutions: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses a stored timestamp, returning the zero time when
// no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
