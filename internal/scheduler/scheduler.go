package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

const (
	// DefaultConcurrency is the default number of probes in flight.
	DefaultConcurrency = 20

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 15 * time.Second
)

// Task is one probe to run: one source for one subject.
type Task struct {
	Subject    model.Identifier
	Descriptor source.Descriptor
}

func (t Task) key() string {
	return t.Descriptor.Name + "\x00" + t.Subject.Key()
}

// Result is the resolution of one dispatched task.
type Result struct {
	Task Task

	// Raw is the probe response; nil when Err is set or the task was cancelled.
	Raw *probe.Result

	// Err wraps model.ErrProbeTimeout or model.ErrProbeTransport.
	Err error

	// Cancelled is set when the run was cancelled before the probe finished.
	// Cancelled results carry no evidence.
	Cancelled bool

	// ObservedAt is when the probe resolved.
	ObservedAt time.Time

	// Elapsed is the wall time spent in the probe itself.
	Elapsed time.Duration
}

// Scheduler runs tasks concurrently.
// Its limits are fixed at construction and shared by every Run.
type Scheduler struct {
	prober  probe.Prober
	sem     *semaphore.Weighted
	ceiling int
	timeout time.Duration
	limiter *rate.Limiter
	nsfw    model.NSFWPolicy
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency sets the maximum number of probes in flight.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.ceiling = n
		}
	}
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRateLimit limits probe starts to rps per second with the given burst.
// A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Scheduler) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithNSFWPolicy sets whether NSFW sources are dispatched.
func WithNSFWPolicy(p model.NSFWPolicy) Option {
	return func(s *Scheduler) {
		s.nsfw = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a Scheduler that probes with p.
func New(p probe.Prober, opts ...Option) *Scheduler {
	s := &Scheduler{
		prober:  p,
		ceiling: DefaultConcurrency,
		timeout: DefaultTimeout,
		nsfw:    model.NSFWExclude,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.sem = semaphore.NewWeighted(int64(s.ceiling))
	return s
}

// Concurrency returns the concurrency ceiling.
func (s *Scheduler) Concurrency() int {
	return s.ceiling
}

// Run dispatches tasks and calls onResult once per dispatched task, on the
// calling goroutine, in completion order. Tasks returned by onResult are
// dispatched in the same run. A task is dispatched at most once per
// (source, subject) pair; tasks the source does not accept and NSFW sources
// under the exclude policy are skipped.
//
// Run returns when every dispatched task has resolved. After ctx is
// cancelled no new task is dispatched, outstanding probes are aborted and
// Run returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, tasks []Task, onResult func(Result) []Task) error {
	results := make(chan Result)
	seen := make(map[string]bool)
	outstanding := 0
	skipped := 0

	var g errgroup.Group
	dispatch := func(t Task) {
		if ctx.Err() != nil {
			return
		}
		if s.nsfw == model.NSFWExclude && t.Descriptor.NSFW {
			skipped++
			return
		}
		if !t.Descriptor.Accepts(t.Subject) {
			skipped++
			return
		}
		k := t.key()
		if seen[k] {
			return
		}
		seen[k] = true
		outstanding++
		g.Go(func() error {
			results <- s.execute(ctx, t)
			return nil
		})
	}

	start := time.Now()
	for _, t := range tasks {
		dispatch(t)
	}
	s.logger.Debug("dispatched probes", "count", outstanding, "skipped", skipped, "concurrency", s.ceiling)

	for outstanding > 0 {
		r := <-results
		outstanding--
		for _, next := range onResult(r) {
			dispatch(next)
		}
	}
	_ = g.Wait() //nolint:errcheck // workers never return an error

	s.logger.Debug("probes resolved", "count", len(seen), "elapsed", time.Since(start))
	return ctx.Err()
}

// execute runs one probe and always returns a resolved Result.
func (s *Scheduler) execute(ctx context.Context, t Task) Result {
	r := Result{Task: t}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		r.Cancelled = true
		r.ObservedAt = s.now()
		return r
	}
	defer s.sem.Release(1)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			r.Cancelled = true
			r.ObservedAt = s.now()
			return r
		}
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.callProber(pctx, t)
	r.Elapsed = time.Since(start)
	r.ObservedAt = s.now()

	switch {
	case ctx.Err() != nil:
		r.Cancelled = true
	case errors.Is(pctx.Err(), context.DeadlineExceeded) || (err != nil && isTimeout(pctx, err)):
		raw = nil
		r.Err = fmt.Errorf("%w: %s after %s", model.ErrProbeTimeout, t.Descriptor.Name, s.timeout)
	case err != nil:
		r.Err = fmt.Errorf("%w: %s: %w", model.ErrProbeTransport, t.Descriptor.Name, err)
	case raw == nil:
		r.Err = fmt.Errorf("%w: %s: empty response", model.ErrProbeTransport, t.Descriptor.Name)
	default:
		r.Raw = raw
	}

	if r.Err != nil {
		s.logger.Debug("probe failed", "source", t.Descriptor.Name, "subject", t.Subject.Key(), "error", r.Err)
	}
	return r
}

// callProber calls the prober and gives up when pctx is done, so a prober that
// ignores its context cannot hold the run past the deadline. The
// abandoned call finishes in the background and its result is dropped.
func (s *Scheduler) callProber(pctx context.Context, t Task) (*probe.Result, error) {
	type reply struct {
		raw *probe.Result
		err error
	}
	done := make(chan reply, 1)
	go func() {
		raw, err := s.prober.Probe(pctx, t.Subject, t.Descriptor)
		done <- reply{raw, err}
	}()

	select {
	case rep := <-done:
		return rep.raw, rep.err
	case <-pctx.Done():
		return nil, pctx.Err()
	}
}

func isTimeout(pctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
