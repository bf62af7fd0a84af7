package adapter

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

var observedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func username(t *testing.T, v string) model.Identifier {
	t.Helper()
	id, err := model.NewUsername(v)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func builtin(t *testing.T, name string) source.Descriptor {
	t.Helper()
	for _, d := range source.Builtin() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no builtin %s", name)
	return source.Descriptor{}
}

func normalize(t *testing.T, subject model.Identifier, desc source.Descriptor, res *probe.Result) Output {
	t.Helper()
	out, err := NewRegistry().Normalize(Observation{
		Subject:    subject,
		Descriptor: desc,
		Result:     res,
		ObservedAt: observedAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func TestRegistryFaults(t *testing.T) {
	t.Parallel()

	desc := builtin(t, "gitlab")
	subject := username(t, "torvalds")

	t.Run("timeout becomes one error evidence", func(t *testing.T) {
		t.Parallel()

		out, err := NewRegistry().Normalize(Observation{
			Subject:    subject,
			Descriptor: desc,
			Err:        fmt.Errorf("%w: after 15s", model.ErrProbeTimeout),
			ObservedAt: observedAt,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ev := out.Evidence
		if ev.Outcome != model.OutcomeError || ev.Subject != "username:torvalds" || ev.Source != "gitlab" {
			t.Errorf("unexpected evidence %+v", ev)
		}
		if string(ev.Payload) != `{"fault":"timeout"}` {
			t.Errorf("unexpected payload %s", ev.Payload)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()

		out, _ := NewRegistry().Normalize(Observation{
			Subject:    subject,
			Descriptor: desc,
			Err:        fmt.Errorf("%w: connection refused", model.ErrProbeTransport),
		})
		if out.Evidence.Outcome != model.OutcomeError || string(out.Evidence.Payload) != `{"fault":"transport"}` {
			t.Errorf("unexpected evidence %+v", out.Evidence)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		odd := desc
		odd.Kind = "carrier_pigeon"
		out := normalize(t, subject, odd, &probe.Result{StatusCode: 200})
		if out.Evidence.Outcome != model.OutcomeError {
			t.Errorf("expected error outcome, got %s", out.Evidence.Outcome)
		}
	})

	t.Run("custom adapters can be registered", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		r.Register(source.KindScraper, Func(func(model.Identifier, source.Descriptor, *probe.Result) Verdict {
			return Verdict{Outcome: model.OutcomeFound, Confidence: 0.9}
		}))
		out, err := r.Normalize(Observation{Subject: subject, Descriptor: desc, Result: &probe.Result{StatusCode: 200}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Evidence.Outcome != model.OutcomeFound || out.Evidence.Confidence != 0.9 {
			t.Errorf("unexpected evidence %+v", out.Evidence)
		}
	})
}

func TestScraper(t *testing.T) {
	t.Parallel()

	subject := username(t, "torvalds")

	tests := []struct {
		name       string
		desc       string
		status     int
		finalURL   string
		body       string
		want       model.Outcome
		wantSignal model.Signal
	}{
		{name: "404 is not found", desc: "gitlab", status: http.StatusNotFound, want: model.OutcomeNotFound},
		{name: "503 is an error", desc: "gitlab", status: http.StatusServiceUnavailable, want: model.OutcomeError},
		{name: "429 is an error", desc: "keybase", status: http.StatusTooManyRequests, want: model.OutcomeError},
		{name: "403 is ambiguous", desc: "keybase", status: http.StatusForbidden, want: model.OutcomeAmbiguous, wantSignal: model.SignalStatusOnly},
		{
			name: "title hit is found", desc: "gitlab", status: http.StatusOK,
			finalURL: "https://gitlab.com/torvalds", body: "<title>Linus Torvalds · GitLab</title>",
			want: model.OutcomeFound,
		},
		{
			name: "landing page is ambiguous", desc: "keybase", status: http.StatusOK,
			finalURL: "https://keybase.io/", body: "<title>Keybase</title>",
			want: model.OutcomeAmbiguous, wantSignal: model.SignalSubjectAbsent,
		},
		{
			name: "redirect off profile is flagged", desc: "keybase", status: http.StatusOK,
			finalURL: "https://keybase.io/", body: "<title>Keybase</title>",
			want: model.OutcomeAmbiguous, wantSignal: model.SignalRedirected,
		},
		{
			name: "missing pattern wins over hit", desc: "gitlab", status: http.StatusOK,
			finalURL: "https://gitlab.com/users/sign_in", body: "<title>Sign in · GitLab</title> torvalds",
			want: model.OutcomeNotFound,
		},
		{
			name: "telegram contact page is not found", desc: "telegram", status: http.StatusOK,
			finalURL: "https://t.me/torvalds",
			body:     `<meta property="og:title" content="Telegram: Contact @torvalds">`,
			want:     model.OutcomeNotFound,
		},
		{
			name: "telegram profile is found", desc: "telegram", status: http.StatusOK,
			finalURL: "https://t.me/torvalds",
			body:     `<meta property="og:title" content="Linus">`,
			want:     model.OutcomeFound,
		},
		{
			name: "twitch without og:title is not found", desc: "twitch", status: http.StatusOK,
			finalURL: "https://www.twitch.tv/torvalds", body: "<title>Twitch</title>",
			want: model.OutcomeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := normalize(t, subject, builtin(t, tt.desc), &probe.Result{
				StatusCode: tt.status,
				FinalURL:   tt.finalURL,
				Body:       []byte(tt.body),
			})
			if out.Evidence.Outcome != tt.want {
				t.Errorf("expected %s, got %s", tt.want, out.Evidence.Outcome)
			}
			if tt.wantSignal != "" && !out.Evidence.HasSignal(tt.wantSignal) {
				t.Errorf("expected signal %s, got %v", tt.wantSignal, out.Evidence.Signals)
			}
		})
	}
}

func TestSiteList(t *testing.T) {
	t.Parallel()

	subject := username(t, "torvalds")
	desc := source.Descriptor{
		Name:        "wmn:Example",
		Kind:        source.KindSiteList,
		Targets:     model.KindUsername,
		URLTemplate: "https://example.com/u/" + source.Placeholder,
		Rule: source.Rule{
			ExistsCode:    200,
			ExistsString:  "user-profile",
			MissingCode:   404,
			MissingString: "no such user",
		},
	}

	tests := []struct {
		name     string
		status   int
		finalURL string
		body     string
		want     model.Outcome
		wantConf float64
	}{
		{name: "match with hit context", status: 200, finalURL: "https://example.com/u/torvalds", body: `<div class="user-profile">`, want: model.OutcomeFound, wantConf: confidenceHigh},
		{name: "match without hit context", status: 200, finalURL: "https://example.com/home", body: `<div class="user-profile">`, want: model.OutcomeFound, wantConf: confidenceLikely},
		{name: "m_code", status: 404, want: model.OutcomeNotFound, wantConf: confidenceHigh},
		{name: "m_string", status: 200, body: "user-profile no such user", want: model.OutcomeNotFound, wantConf: confidenceHigh},
		{name: "e_string absent", status: 200, body: "hello", want: model.OutcomeNotFound, wantConf: confidenceFair},
		{name: "other status", status: 302, want: model.OutcomeNotFound, wantConf: confidenceFair},
		{name: "server error", status: 502, want: model.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := normalize(t, subject, desc, &probe.Result{StatusCode: tt.status, FinalURL: tt.finalURL, Body: []byte(tt.body)})
			if out.Evidence.Outcome != tt.want {
				t.Errorf("expected %s, got %s", tt.want, out.Evidence.Outcome)
			}
			if out.Evidence.Confidence != tt.wantConf {
				t.Errorf("expected confidence %v, got %v", tt.wantConf, out.Evidence.Confidence)
			}
		})
	}
}

func TestSherlock(t *testing.T) {
	t.Parallel()

	subject := username(t, "torvalds")
	base := source.Descriptor{
		Name:        "sherlock:Example",
		Kind:        source.KindSherlock,
		Targets:     model.KindUsername,
		URLTemplate: "https://example.com/" + source.Placeholder,
	}
	withRule := func(r source.Rule) source.Descriptor {
		d := base
		d.Rule = r
		return d
	}

	tests := []struct {
		name       string
		desc       source.Descriptor
		status     int
		finalURL   string
		body       string
		want       model.Outcome
		wantSignal model.Signal
	}{
		{
			name: "status_code hit without context stays ambiguous",
			desc: withRule(source.Rule{ErrorTypes: []string{"status_code"}}), status: 200,
			finalURL: "https://example.com/", want: model.OutcomeAmbiguous, wantSignal: model.SignalStatusOnly,
		},
		{
			name: "status_code hit with path context is found",
			desc: withRule(source.Rule{ErrorTypes: []string{"status_code"}}), status: 200,
			finalURL: "https://example.com/torvalds", want: model.OutcomeFound,
		},
		{
			name: "status_code error code is not found",
			desc: withRule(source.Rule{ErrorTypes: []string{"status_code"}, ErrorCodes: []int{204}}), status: 204,
			want: model.OutcomeNotFound,
		},
		{
			name: "message present is not found",
			desc: withRule(source.Rule{ErrorTypes: []string{"message"}, ErrorMessages: []string{"Sorry, nobody"}}), status: 200,
			body: "Sorry, nobody here", want: model.OutcomeNotFound,
		},
		{
			name: "message absent is found",
			desc: withRule(source.Rule{ErrorTypes: []string{"message"}, ErrorMessages: []string{"Sorry, nobody"}}), status: 200,
			finalURL: "https://example.com/", body: "<title>Example</title>", want: model.OutcomeFound, wantSignal: model.SignalSubjectAbsent,
		},
		{
			name: "response_url non-2xx is not found",
			desc: withRule(source.Rule{ErrorTypes: []string{"response_url"}}), status: 301,
			want: model.OutcomeNotFound,
		},
		{
			name: "no errorType falls back to status",
			desc: base, status: 404, want: model.OutcomeNotFound,
		},
		{
			name: "server error", desc: base, status: 500, want: model.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := normalize(t, subject, tt.desc, &probe.Result{StatusCode: tt.status, FinalURL: tt.finalURL, Body: []byte(tt.body)})
			if out.Evidence.Outcome != tt.want {
				t.Errorf("expected %s, got %s", tt.want, out.Evidence.Outcome)
			}
			if tt.wantSignal != "" && !out.Evidence.HasSignal(tt.wantSignal) {
				t.Errorf("expected signal %s, got %v", tt.wantSignal, out.Evidence.Signals)
			}
		})
	}
}

func TestGitHub(t *testing.T) {
	t.Parallel()

	subject := username(t, "torvalds")
	desc := builtin(t, "github")

	t.Run("found with discoveries", func(t *testing.T) {
		t.Parallel()

		body := `{"login":"torvalds","name":"Linus Torvalds","twitter_username":"linus_t","email":"Linus@Example.org","public_repos":8,"followers":1000,"site_admin":false}`
		out := normalize(t, subject, desc, &probe.Result{StatusCode: 200, Body: []byte(body)})

		if out.Evidence.Outcome != model.OutcomeFound || out.Evidence.Confidence != confidenceCertain {
			t.Fatalf("unexpected evidence %+v", out.Evidence)
		}
		if out.Evidence.URL != "https://github.com/torvalds" {
			t.Errorf("expected profile url, got %s", out.Evidence.URL)
		}
		if len(out.Discovered) != 2 {
			t.Fatalf("expected 2 discoveries, got %+v", out.Discovered)
		}
		if out.Discovered[0].Identifier.Key() != "username:linus_t" || out.Discovered[1].Identifier.Key() != "email:linus@example.org" {
			t.Errorf("unexpected discoveries %+v", out.Discovered)
		}
	})

	t.Run("login mismatch is ambiguous", func(t *testing.T) {
		t.Parallel()

		out := normalize(t, subject, desc, &probe.Result{StatusCode: 200, Body: []byte(`{"login":"someone"}`)})
		if out.Evidence.Outcome != model.OutcomeAmbiguous || len(out.Discovered) != 0 {
			t.Errorf("unexpected output %+v", out)
		}
	})

	t.Run("statuses", func(t *testing.T) {
		t.Parallel()

		cases := map[int]model.Outcome{
			http.StatusNotFound:   model.OutcomeNotFound,
			http.StatusForbidden:  model.OutcomeError,
			http.StatusTeapot:     model.OutcomeError,
			http.StatusBadGateway: model.OutcomeError,
		}
		for status, want := range cases {
			out := normalize(t, subject, desc, &probe.Result{StatusCode: status})
			if out.Evidence.Outcome != want {
				t.Errorf("status %d: expected %s, got %s", status, want, out.Evidence.Outcome)
			}
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		out := normalize(t, subject, desc, &probe.Result{StatusCode: 200, Body: []byte("<html>")})
		if out.Evidence.Outcome != model.OutcomeError {
			t.Errorf("expected error, got %s", out.Evidence.Outcome)
		}
	})
}

func TestGravatar(t *testing.T) {
	t.Parallel()

	subject, _ := model.NewEmail("user@example.com")
	desc := builtin(t, "gravatar")

	out := normalize(t, subject, desc, &probe.Result{
		StatusCode: 200,
		Body:       []byte(`{"entry":[{"preferredUsername":"user42","displayName":"User"}]}`),
	})
	if out.Evidence.Outcome != model.OutcomeFound {
		t.Fatalf("expected found, got %s", out.Evidence.Outcome)
	}
	if out.Evidence.URL != "https://gravatar.com/b58996c504c5638798eb6b511e6f49af" {
		t.Errorf("unexpected url %s", out.Evidence.URL)
	}
	if len(out.Discovered) != 1 || out.Discovered[0].Identifier.Value != "user42" {
		t.Errorf("unexpected discoveries %+v", out.Discovered)
	}

	missing := normalize(t, subject, desc, &probe.Result{StatusCode: 404})
	if missing.Evidence.Outcome != model.OutcomeNotFound {
		t.Errorf("expected not found, got %s", missing.Evidence.Outcome)
	}
	empty := normalize(t, subject, desc, &probe.Result{StatusCode: 200, Body: []byte(`{"entry":[]}`)})
	if empty.Evidence.Outcome != model.OutcomeNotFound {
		t.Errorf("expected not found for empty entry, got %s", empty.Evidence.Outcome)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	t.Parallel()

	subject := username(t, "torvalds")
	desc := builtin(t, "gitlab")
	res := &probe.Result{StatusCode: 200, FinalURL: "https://gitlab.com/torvalds", Body: []byte("<title>torvalds</title>")}

	a := normalize(t, subject, desc, res)
	b := normalize(t, subject, desc, res)
	if a.Evidence.ID != b.Evidence.ID {
		t.Error("expected identical evidence IDs for identical results")
	}
}
