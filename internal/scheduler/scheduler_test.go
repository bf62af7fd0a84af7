package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

func desc(name string) source.Descriptor {
	return source.Descriptor{
		Name:        name,
		Kind:        source.KindScraper,
		Targets:     model.KindUsername,
		URLTemplate: "https://" + name + ".example/" + source.Placeholder,
	}
}

func tasksFor(subject model.Identifier, names ...string) []Task {
	tasks := make([]Task, 0, len(names))
	for _, n := range names {
		tasks = append(tasks, Task{Subject: subject, Descriptor: desc(n)})
	}
	return tasks
}

// sleepProber waits for the per-source latency or until ctx is done.
func sleepProber(latency map[string]time.Duration) probe.Prober {
	return probe.Func(func(ctx context.Context, _ model.Identifier, d source.Descriptor) (*probe.Result, error) {
		select {
		case <-time.After(latency[d.Name]):
			return &probe.Result{StatusCode: 200}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	s := New(sleepProber(nil))
	if s.Concurrency() != DefaultConcurrency {
		t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, s.Concurrency())
	}
	if s.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", s.timeout)
	}
	s = New(sleepProber(nil), WithConcurrency(0), WithTimeout(-1))
	if s.Concurrency() != DefaultConcurrency || s.timeout != DefaultTimeout {
		t.Error("expected non-positive options to be ignored")
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	user, _ := model.NewUsername("torvalds")

	t.Run("delivers every task once", func(t *testing.T) {
		t.Parallel()

		s := New(sleepProber(nil))
		tasks := append(tasksFor(user, "a", "b", "c"), tasksFor(user, "a")...)

		got := map[string]int{}
		err := s.Run(context.Background(), tasks, func(r Result) []Task {
			got[r.Task.Descriptor.Name]++
			if r.Raw == nil || r.Err != nil {
				t.Errorf("unexpected result %+v", r)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 || got["a"] != 1 {
			t.Errorf("unexpected deliveries %v", got)
		}
	})

	t.Run("timeout isolation", func(t *testing.T) {
		t.Parallel()

		latency := map[string]time.Duration{
			"fast1": 20 * time.Millisecond,
			"fast2": 50 * time.Millisecond,
			"fast3": 80 * time.Millisecond,
			"stuck": time.Hour,
		}
		s := New(sleepProber(latency), WithTimeout(300*time.Millisecond))

		var order []string
		var timeouts int
		start := time.Now()
		err := s.Run(context.Background(), tasksFor(user, "stuck", "fast1", "fast2", "fast3"), func(r Result) []Task {
			order = append(order, r.Task.Descriptor.Name)
			if r.Err != nil {
				if !errors.Is(r.Err, model.ErrProbeTimeout) {
					t.Errorf("expected ErrProbeTimeout, got %v", r.Err)
				}
				timeouts++
			}
			return nil
		})
		elapsed := time.Since(start)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if timeouts != 1 {
			t.Errorf("expected 1 timeout, got %d", timeouts)
		}
		if order[len(order)-1] != "stuck" {
			t.Errorf("expected siblings to finish first, got %v", order)
		}
		if elapsed > 2*time.Second {
			t.Errorf("run took %s, expected about the timeout", elapsed)
		}
	})

	t.Run("prober ignoring its context is timed out", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		p := probe.Func(func(_ context.Context, _ model.Identifier, d source.Descriptor) (*probe.Result, error) {
			if d.Name == "slow" {
				<-release
			}
			return &probe.Result{StatusCode: 200}, nil
		})
		s := New(p, WithTimeout(50*time.Millisecond))

		results := map[string]Result{}
		start := time.Now()
		err := s.Run(context.Background(), tasksFor(user, "fast", "slow"), func(r Result) []Task {
			results[r.Task.Descriptor.Name] = r
			return nil
		})
		elapsed := time.Since(start)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r := results["slow"]; !errors.Is(r.Err, model.ErrProbeTimeout) || r.Raw != nil {
			t.Errorf("expected slow to time out without a response, got err=%v raw=%v", r.Err, r.Raw)
		}
		if r := results["fast"]; r.Err != nil || r.Raw == nil {
			t.Errorf("expected fast to succeed, got %+v", r)
		}
		if elapsed > time.Second {
			t.Errorf("run took %s, expected about the timeout", elapsed)
		}
	})

	t.Run("transport errors are wrapped", func(t *testing.T) {
		t.Parallel()

		s := New(probe.Func(func(context.Context, model.Identifier, source.Descriptor) (*probe.Result, error) {
			return nil, fmt.Errorf("connection refused")
		}))
		var got error
		_ = s.Run(context.Background(), tasksFor(user, "a"), func(r Result) []Task {
			got = r.Err
			return nil
		})
		if !errors.Is(got, model.ErrProbeTransport) {
			t.Errorf("expected ErrProbeTransport, got %v", got)
		}
	})

	t.Run("respects the concurrency ceiling", func(t *testing.T) {
		t.Parallel()

		var inFlight, peak atomic.Int32
		p := probe.Func(func(context.Context, model.Identifier, source.Descriptor) (*probe.Result, error) {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return &probe.Result{StatusCode: 200}, nil
		})

		s := New(p, WithConcurrency(2))
		names := make([]string, 10)
		for i := range names {
			names[i] = fmt.Sprintf("s%d", i)
		}
		if err := s.Run(context.Background(), tasksFor(user, names...), func(Result) []Task { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 probes in flight, saw %d", peak.Load())
		}
	})

	t.Run("dispatches follow-up tasks", func(t *testing.T) {
		t.Parallel()

		alias, _ := model.NewUsername("linus")
		s := New(sleepProber(nil))
		var subjects []string
		err := s.Run(context.Background(), tasksFor(user, "a"), func(r Result) []Task {
			subjects = append(subjects, r.Task.Subject.Key())
			if r.Task.Subject.Key() == user.Key() {
				return tasksFor(alias, "a", "b")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(subjects) != 3 {
			t.Errorf("expected 3 results, got %v", subjects)
		}
	})

	t.Run("skips NSFW under exclude and unaccepted subjects", func(t *testing.T) {
		t.Parallel()

		email, _ := model.NewEmail("user@example.com")
		nsfw := desc("adult")
		nsfw.NSFW = true
		tasks := []Task{
			{Subject: user, Descriptor: nsfw},
			{Subject: email, Descriptor: desc("a")},
			{Subject: user, Descriptor: desc("b")},
		}

		count := func(policy model.NSFWPolicy) int {
			n := 0
			s := New(sleepProber(nil), WithNSFWPolicy(policy))
			_ = s.Run(context.Background(), tasks, func(Result) []Task { n++; return nil })
			return n
		}
		if got := count(model.NSFWExclude); got != 1 {
			t.Errorf("expected 1 probe under exclude, got %d", got)
		}
		if got := count(model.NSFWAllow); got != 2 {
			t.Errorf("expected 2 probes under allow, got %d", got)
		}
	})

	t.Run("cancellation stops dispatch and aborts probes", func(t *testing.T) {
		t.Parallel()

		latency := map[string]time.Duration{"fast": time.Millisecond, "slow1": time.Hour, "slow2": time.Hour}
		s := New(sleepProber(latency))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var cancelled, delivered int
		start := time.Now()
		err := s.Run(ctx, tasksFor(user, "fast", "slow1", "slow2"), func(r Result) []Task {
			delivered++
			if r.Cancelled {
				cancelled++
			}
			cancel()
			return tasksFor(user, "late")
		})

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if delivered != 3 || cancelled != 2 {
			t.Errorf("expected 3 delivered and 2 cancelled, got %d and %d", delivered, cancelled)
		}
		if time.Since(start) > 2*time.Second {
			t.Error("expected outstanding probes to be aborted")
		}
	})

	t.Run("rate limit", func(t *testing.T) {
		t.Parallel()

		s := New(sleepProber(nil), WithRateLimit(20, 1))
		start := time.Now()
		if err := s.Run(context.Background(), tasksFor(user, "a", "b", "c", "d"), func(Result) []Task { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Errorf("expected rate limit to space probes, took %s", elapsed)
		}
	})
}
