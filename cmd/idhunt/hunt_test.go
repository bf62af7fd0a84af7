package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/database"
	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/report"
)

// executeRoot runs the root command with args and returns what it wrote.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newProfileServer serves a profile page for every user in users and a
// 404 page for everyone else.
func newProfileServer(t *testing.T, users ...string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		for _, u := range users {
			if u == name {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprintf(w, "<html><head><title>%s</title></head><body><h1>profile of %s</h1></body></html>", name, name)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><body>user not found</body></html>"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeSiteList writes a WhatsMyName list with one entry pointing at srv.
func writeSiteList(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	content := fmt.Sprintf(`{"sites": [
  {"name": "Local", "uri_check": "%s/{account}", "e_code": 200, "e_string": "profile of", "m_code": 404, "m_string": "user not found", "cat": "coding"}
]}`, srv.URL)
	path := filepath.Join(t.TempDir(), "wmn-data.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write site list: %v", err)
	}
	return path
}

// huntArgs returns the arguments of a hunt against the site list only.
func huntArgs(cfgPath, siteList, dbDir string, extra ...string) []string {
	args := []string{"-c", cfgPath, "hunt", "--no-builtin", "--site-list", siteList, "--db-dir", dbDir}
	return append(args, extra...)
}

// findResolution returns the resolution of subject on source.
func findResolution(agg *model.Aggregate, sourceName, subject string) (model.Resolution, bool) {
	for _, r := range agg.Resolutions {
		if r.Source == sourceName && r.Subject == subject {
			return r, true
		}
	}
	return model.Resolution{}, false
}

func TestHuntCmd(t *testing.T) {
	t.Parallel()

	t.Run("correlates seeds and stores the run", func(t *testing.T) {
		t.Parallel()

		srv := newProfileServer(t, "alice")
		cfgPath := writeConfig(t, "# empty\n")
		dbDir := t.TempDir()

		stdout, stderr, err := executeRoot(t, huntArgs(cfgPath, writeSiteList(t, srv), dbDir,
			"-u", "alice", "bob", "--json")...)
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		if !strings.Contains(stderr, "Hunting") || !strings.Contains(stderr, "Hunt completed") {
			t.Errorf("expected progress messages, got %q", stderr)
		}

		dossier, err := report.DecodeDossier(strings.NewReader(stdout))
		if err != nil {
			t.Fatalf("failed to decode dossier: %v\n%s", err, stdout)
		}
		agg := dossier.Aggregate

		alice, ok := findResolution(agg, "wmn:Local", "username:alice")
		if !ok || alice.Outcome != model.OutcomeFound {
			t.Errorf("expected alice to be found, got %+v", alice)
		}
		bob, ok := findResolution(agg, "wmn:Local", "username:bob")
		if !ok || bob.Outcome != model.OutcomeNotFound {
			t.Errorf("expected bob to be not found, got %+v", bob)
		}
		if got := agg.Counters["username:alice"].Found; got != 1 {
			t.Errorf("expected one found for alice, got %d", got)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].RunID != agg.RunID {
			t.Errorf("expected the run to be stored, got %+v", runs)
		}
	})

	t.Run("positional emails and report file", func(t *testing.T) {
		t.Parallel()

		srv := newProfileServer(t)
		cfgPath := writeConfig(t, "# empty\n")
		reportPath := filepath.Join(t.TempDir(), "out", "report.md")

		_, stderr, err := executeRoot(t, huntArgs(cfgPath, writeSiteList(t, srv), t.TempDir(),
			"carol", "carol@example.com", "--markdown", "-o", reportPath, "--save=false")...)
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		if !strings.Contains(stderr, "email:carol@example.com") {
			t.Errorf("expected the email seed in progress output, got %q", stderr)
		}

		content, err := os.ReadFile(reportPath) //nolint:gosec // test file
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "carol") {
			t.Errorf("expected the report to name the seed, got %q", content)
		}
	})

	t.Run("requires a seed", func(t *testing.T) {
		t.Parallel()

		cfgPath := writeConfig(t, "# empty\n")
		_, _, err := executeRoot(t, "-c", cfgPath, "hunt", "--save=false")
		if !errors.Is(err, config.ErrNoSeed) {
			t.Errorf("expected ErrNoSeed, got %v", err)
		}
	})

	t.Run("rejects conflicting report formats", func(t *testing.T) {
		t.Parallel()

		cfgPath := writeConfig(t, "# empty\n")
		_, _, err := executeRoot(t, "-c", cfgPath, "hunt", "-u", "alice", "--json", "--markdown")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("rejects proxy with tor", func(t *testing.T) {
		t.Parallel()

		cfgPath := writeConfig(t, "# empty\n")
		_, _, err := executeRoot(t, "-c", cfgPath, "hunt", "-u", "alice", "--proxy", "127.0.0.1:9050", "--tor")
		if !errors.Is(err, config.ErrConflictingProxies) {
			t.Errorf("expected ErrConflictingProxies, got %v", err)
		}
	})

	t.Run("no sources left", func(t *testing.T) {
		t.Parallel()

		cfgPath := writeConfig(t, "# empty\n")
		_, _, err := executeRoot(t, "-c", cfgPath, "hunt", "-u", "alice", "--no-builtin", "--save=false")
		if !errors.Is(err, errNoSources) {
			t.Errorf("expected errNoSources, got %v", err)
		}
	})
}

func TestLoadDescriptors(t *testing.T) {
	t.Parallel()

	srv := newProfileServer(t)
	siteList := writeSiteList(t, srv)

	t.Run("builtin and site list", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.SiteListPath = siteList
		descs, err := loadDescriptors(context.Background(), cfg, srv.Client(), discardLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		names := make(map[string]bool, len(descs))
		for _, d := range descs {
			names[d.Name] = true
		}
		if !names["wmn:Local"] || !names["github"] {
			t.Errorf("expected builtin and site list sources, got %v", names)
		}
	})

	t.Run("category filter", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.UseBuiltin = false
		cfg.SiteListPath = siteList
		cfg.Categories = []string{"social"}
		if _, err := loadDescriptors(context.Background(), cfg, srv.Client(), discardLogger()); !errors.Is(err, errNoSources) {
			t.Errorf("expected errNoSources, got %v", err)
		}
	})

	t.Run("disabled in the config file", func(t *testing.T) {
		t.Parallel()

		f, err := config.LoadConfigFile(writeConfig(t, "sites:\n  wmn:Local:\n    disabled: true\n"))
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		cfg := config.NewConfig()
		cfg.UseBuiltin = false
		cfg.SiteListPath = siteList
		cfg.Apply(f)
		if _, err := loadDescriptors(context.Background(), cfg, srv.Client(), discardLogger()); !errors.Is(err, errNoSources) {
			t.Errorf("expected errNoSources, got %v", err)
		}
	})

	t.Run("missing manifest", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.SiteListPath = filepath.Join(t.TempDir(), "missing.json")
		if _, err := loadDescriptors(context.Background(), cfg, srv.Client(), discardLogger()); err == nil {
			t.Error("expected error for a missing manifest")
		}
	})
}

func TestReportFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  func(*config.Config)
		want report.Format
	}{
		{name: "json flag", cfg: func(c *config.Config) { c.JSONReport = true }, want: report.FormatJSON},
		{name: "markdown flag", cfg: func(c *config.Config) { c.MarkdownReport = true }, want: report.FormatMarkdown},
		{name: "pipe without file", cfg: func(*config.Config) {}, want: report.FormatJSON},
		{name: "report file", cfg: func(c *config.Config) { c.ReportFile = "out.txt" }, want: report.FormatTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			tt.cfg(cfg)
			if got := reportFormat(cfg, &bytes.Buffer{}); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	if isTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if isTerminal(f) {
		t.Error("a regular file is not a terminal")
	}
}

func TestSaveDossierWithoutDatabase(t *testing.T) {
	t.Parallel()

	if err := saveDossier(context.Background(), nil, nil, discardLogger()); err != nil {
		t.Errorf("expected no-op without a database, got %v", err)
	}
}
