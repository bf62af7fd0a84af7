package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/idhunt/internal/model"
)

func completion(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "deepseek-chat",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

const testKey = "sk-test"

func newServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+testKey {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}, nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	c, err := NewClient(Config{APIKey: "sk-test"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model() != DefaultModel || c.timeout != DefaultTimeout {
		t.Errorf("expected defaults, got %s %s", c.Model(), c.timeout)
	}
}

func TestClientAnalyze(t *testing.T) {
	t.Parallel()

	t.Run("parses a JSON reply", func(t *testing.T) {
		t.Parallel()

		reply := `{"summary":"Same person on GitHub and GitLab.","highlights":["github","gitlab"],"confidence":0.8}`
		srv := newServer(t, http.StatusOK, completion(reply))

		c, err := NewClient(Config{APIKey: testKey, BaseURL: srv.URL + "/v1/"}, srv.Client())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a, err := c.Analyze(context.Background(), []byte(`{"run_id":"r"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Summary != "Same person on GitHub and GitLab." || len(a.Highlights) != 2 || a.Confidence != 0.8 {
			t.Errorf("unexpected analysis %+v", a)
		}
		if a.Model != "deepseek-chat" || a.GeneratedAt.IsZero() || a.Raw != nil {
			t.Errorf("unexpected metadata %+v", a)
		}
	})

	t.Run("plain text becomes the summary", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, http.StatusOK, completion("No strong matches."))
		c, _ := NewClient(Config{APIKey: testKey, BaseURL: srv.URL + "/v1", KeepRaw: true}, srv.Client())
		a, err := c.Analyze(context.Background(), []byte(`{}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Summary != "No strong matches." || a.Confidence != 0 {
			t.Errorf("unexpected analysis %+v", a)
		}
		if !strings.Contains(string(a.Raw), "chatcmpl-1") {
			t.Errorf("expected raw response, got %s", a.Raw)
		}
	})

	t.Run("provider failures wrap ErrAnalysisService", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			status int
			body   any
		}{
			{name: "server error", status: http.StatusInternalServerError, body: map[string]any{"error": map[string]any{"message": "boom"}}},
			{name: "unauthorized", status: http.StatusUnauthorized, body: map[string]any{"error": map[string]any{"message": "bad key"}}},
			{name: "no choices", status: http.StatusOK, body: map[string]any{"id": "x", "choices": []any{}}},
			{name: "empty content", status: http.StatusOK, body: completion("  ")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				srv := newServer(t, tt.status, tt.body)
				c, _ := NewClient(Config{APIKey: testKey, BaseURL: srv.URL + "/v1"}, srv.Client())
				if _, err := c.Analyze(context.Background(), []byte(`{}`)); !errors.Is(err, model.ErrAnalysisService) {
					t.Errorf("expected ErrAnalysisService, got %v", err)
				}
			})
		}
	})
}

func TestParseContent(t *testing.T) {
	t.Parallel()

	a := parseContent("```json\n{\"summary\":\"s\",\"confidence\":7}\n```")
	if a.Summary != "s" || a.Confidence != 1 {
		t.Errorf("expected fenced JSON to parse and clamp, got %+v", a)
	}
}
