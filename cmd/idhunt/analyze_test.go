package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/database"
	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/report"
)

type stubAnalyst struct {
	analysis *analyst.Analysis
	err      error
	called   bool
}

func (s *stubAnalyst) Analyze(context.Context, []byte) (*analyst.Analysis, error) {
	s.called = true
	return s.analysis, s.err
}

func partialAggregate(t *testing.T) *model.Aggregate {
	t.Helper()

	inputs, err := model.NewInputSet([]string{"alice"}, nil)
	if err != nil {
		t.Fatalf("failed to build inputs: %v", err)
	}
	agg := model.NewAggregate("run-partial", time.Now(), model.Policy{NSFW: model.NSFWExclude}, inputs)
	agg.Partial = true
	return agg
}

// newAnalystServer serves an OpenAI-compatible chat completion endpoint
// that answers with content, or fails with status when it is not 200.
func newAnalystServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "deepseek-chat",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// analystConfig writes a configuration file pointing the analyst at srv.
func analystConfig(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return writeConfig(t, fmt.Sprintf("ai:\n  api_key: sk-test\n  base_url: %s/v1\n", srv.URL))
}

const analysisReply = `{"summary":"alice holds the Local account.","highlights":["wmn:Local"],"confidence":0.7}`

func TestAnalyzeCmd(t *testing.T) {
	t.Parallel()

	t.Run("analyzes an exported dossier", func(t *testing.T) {
		t.Parallel()

		cfgPath := analystConfig(t, newAnalystServer(t, http.StatusOK, analysisReply))
		profiles := newProfileServer(t, "alice")
		dossierPath := filepath.Join(t.TempDir(), "alice.json")
		if _, stderr, err := executeRoot(t, huntArgs(cfgPath, writeSiteList(t, profiles), t.TempDir(),
			"-u", "alice", "--json", "-o", dossierPath, "--save=false")...); err != nil {
			t.Fatalf("hunt failed: %v\n%s", err, stderr)
		}

		dbDir := t.TempDir()
		stdout, stderr, err := executeRoot(t, "-c", cfgPath, "analyze", dossierPath, "--json", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		dossier, err := report.DecodeDossier(strings.NewReader(stdout))
		if err != nil {
			t.Fatalf("failed to decode dossier: %v", err)
		}
		if dossier.Analysis == nil || dossier.Analysis.Summary != "alice holds the Local account." {
			t.Errorf("expected the analysis to be attached, got %+v", dossier.Analysis)
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
		if len(runs) != 0 {
			t.Errorf("expected a dossier file not to be stored without --save, got %d runs", len(runs))
		}
	})

	t.Run("updates the latest stored run", func(t *testing.T) {
		t.Parallel()

		cfgPath := analystConfig(t, newAnalystServer(t, http.StatusOK, analysisReply))
		dbDir := t.TempDir()
		runID := storeRun(t, cfgPath, dbDir)

		if _, stderr, err := executeRoot(t, "-c", cfgPath, "analyze", "--latest", "--json", "--db-dir", dbDir); err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		stored, err := db.LoadRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("failed to load run: %v", err)
		}
		if stored.Analysis == nil {
			t.Error("expected the stored run to carry the analysis")
		}
	})

	t.Run("failed analysis is reported", func(t *testing.T) {
		t.Parallel()

		cfgPath := analystConfig(t, newAnalystServer(t, http.StatusInternalServerError, ""))
		dbDir := t.TempDir()
		runID := storeRun(t, cfgPath, dbDir)

		stdout, _, err := executeRoot(t, "-c", cfgPath, "analyze", "--run", shortID(runID), "--json", "--db-dir", dbDir)
		if err == nil || !strings.Contains(err.Error(), "analysis failed") {
			t.Fatalf("expected analysis error, got %v", err)
		}
		dossier, err := report.DecodeDossier(strings.NewReader(stdout))
		if err != nil {
			t.Fatalf("failed to decode dossier: %v", err)
		}
		if dossier.AnalysisError == "" || dossier.Analysis != nil {
			t.Errorf("expected analysis_error in the dossier, got %+v", dossier)
		}
	})

	t.Run("argument validation", func(t *testing.T) {
		t.Parallel()

		cfgPath := writeConfig(t, "ai:\n  api_key: sk-test\n")
		tests := []struct {
			name string
			args []string
			want string
		}{
			{name: "nothing to analyze", args: []string{"analyze"}, want: errNoDossier.Error()},
			{name: "file and latest", args: []string{"analyze", "x.json", "--latest"}, want: "mutually exclusive"},
			{name: "run and latest", args: []string{"analyze", "--run", "abc", "--latest"}, want: "mutually exclusive"},
			{name: "missing file", args: []string{"analyze", filepath.Join(t.TempDir(), "missing.json")}, want: "failed to open dossier"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				_, _, err := executeRoot(t, append([]string{"-c", cfgPath}, tt.args...)...)
				if err == nil || !strings.Contains(err.Error(), tt.want) {
					t.Errorf("expected error containing %q, got %v", tt.want, err)
				}
			})
		}
	})
}

func TestAnalyzeDossierPartialWarning(t *testing.T) {
	t.Parallel()

	a := &stubAnalyst{err: errors.New("offline")}
	dossier := &report.Dossier{Aggregate: partialAggregate(t)}

	var status strings.Builder
	err := analyzeDossier(context.Background(), a, dossier, discardLogger(), &status)
	if err == nil {
		t.Fatal("expected error from the analyst")
	}
	if !strings.Contains(status.String(), "partial results") {
		t.Errorf("expected a partial run warning, got %q", status.String())
	}
	if dossier.AnalysisError == "" {
		t.Error("expected the failure to be recorded in the dossier")
	}
	if !a.called {
		t.Error("expected the analyst to be called")
	}
}
