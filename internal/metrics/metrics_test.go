package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestProbes(t *testing.T) {
	t.Parallel()

	t.Run("writes recorded metrics", func(t *testing.T) {
		t.Parallel()

		p := NewProbes()
		p.Observe("scraper", "found", 120*time.Millisecond)
		p.Observe("scraper", "found", 80*time.Millisecond)
		p.Observe("sherlock", "error", time.Second)
		p.Cancelled()
		p.Pivot()

		path := filepath.Join(t.TempDir(), "idhunt.prom")
		if err := p.WriteTextfile(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(path) //nolint:gosec // test file
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := string(data)

		for _, want := range []string{
			`idhunt_probe_outcomes_total{kind="scraper",outcome="found"} 2`,
			`idhunt_probe_outcomes_total{kind="sherlock",outcome="error"} 1`,
			`idhunt_probe_duration_seconds_count{kind="scraper"} 2`,
			`idhunt_probe_cancelled_total 1`,
			`idhunt_correlate_pivots_total 1`,
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("nil recorder is a no-op", func(t *testing.T) {
		t.Parallel()

		var p *Probes
		p.Observe("scraper", "found", time.Second)
		p.Cancelled()
		p.Pivot()
		if err := p.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("registries are independent", func(t *testing.T) {
		t.Parallel()

		a, b := NewProbes(), NewProbes()
		a.Cancelled()
		families, err := b.Registry().Gather()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, f := range families {
			if f.GetName() == "idhunt_probe_cancelled_total" && f.GetMetric()[0].GetCounter().GetValue() != 0 {
				t.Error("expected separate registries")
			}
		}
	})
}
