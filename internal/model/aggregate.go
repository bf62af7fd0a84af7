package model

import (
	"fmt"
	"sort"
	"time"
)

// NSFWPolicy decides whether resolutions from NSFW-flagged sources count.
type NSFWPolicy string

const (
	// NSFWExclude excludes NSFW resolutions from the tallies (the default).
	NSFWExclude NSFWPolicy = "exclude"

	// NSFWAllow keeps NSFW resolutions like any other.
	NSFWAllow NSFWPolicy = "allow"
)

// Valid reports whether p is a known policy.
func (p NSFWPolicy) Valid() bool {
	return p == NSFWExclude || p == NSFWAllow
}

// Policy is the immutable set of run flags that influence the aggregate.
// It is recorded in the aggregate so a re-analysis sees the same rules.
type Policy struct {
	// Strict enables the heuristic re-scoring pass.
	Strict bool `json:"strict"`

	// NSFW is applied regardless of Strict.
	NSFW NSFWPolicy `json:"nsfw"`

	// DemoteThreshold demotes found below this score to ambiguous.
	DemoteThreshold float64 `json:"demote_threshold"`

	// ExcludeThreshold excludes ambiguous below this score.
	ExcludeThreshold float64 `json:"exclude_threshold"`

	// SignalPenalty multiplies the score once per adapter signal.
	SignalPenalty float64 `json:"signal_penalty"`

	// Weights overrides the reliability weight of individual sources by name.
	Weights map[string]float64 `json:"weights,omitempty"`

	// DeriveLocalPart probes the local part of every email seed as a username.
	DeriveLocalPart bool `json:"derive_local_part"`

	// Pivot probes identifiers discovered in seed profiles (one level).
	Pivot bool `json:"pivot"`
}

// Resolution is the verdict for one (source, subject) pair.
type Resolution struct {
	Source     string `json:"source"`
	SourceKind string `json:"source_kind"`
	Subject    string `json:"subject"`
	URL        string `json:"url,omitempty"`
	NSFW       bool   `json:"nsfw,omitempty"`

	// Outcome and Confidence are what the correlation engine resolved.
	Outcome    Outcome `json:"outcome"`
	Confidence float64 `json:"confidence"`

	// EvidenceIDs lists the evidence the verdict stands on, sorted.
	EvidenceIDs []string `json:"evidence_ids"`

	// Superseded lists error evidence replaced by a non-error outcome, sorted.
	Superseded []string `json:"superseded,omitempty"`

	// Conflict is set when distinct non-error outcomes were observed.
	Conflict bool `json:"conflict,omitempty"`

	// Score, FinalOutcome, Excluded and Reasons are set by the heuristic filter.
	Score        float64  `json:"score"`
	FinalOutcome Outcome  `json:"final_outcome"`
	Excluded     bool     `json:"excluded,omitempty"`
	Reasons      []string `json:"reasons,omitempty"`
}

// Counters are the summary tallies of a subject or seed.
// Excluded resolutions are counted only in Excluded.
type Counters struct {
	Found     int `json:"found"`
	NotFound  int `json:"not_found"`
	Ambiguous int `json:"ambiguous"`
	Error     int `json:"error"`
	Excluded  int `json:"excluded"`
}

func (c *Counters) add(r Resolution) {
	if r.Excluded {
		c.Excluded++
		return
	}
	switch r.FinalOutcome {
	case OutcomeFound:
		c.Found++
	case OutcomeNotFound:
		c.NotFound++
	case OutcomeAmbiguous:
		c.Ambiguous++
	case OutcomeError:
		c.Error++
	}
}

// Total returns the number of resolutions counted.
func (c Counters) Total() int {
	return c.Found + c.NotFound + c.Ambiguous + c.Error + c.Excluded
}

// Aggregate is the Identity Aggregate of one run.
// It is populated once by the pipeline and frozen by the assembler;
// setters fail with ErrAggregateConsistency after Freeze.
//
// Freeze only guards the setters. The exported fields stay assignable, so
// consumers of a frozen aggregate must treat them as read-only. The
// accessors return fresh slices that callers may modify.
type Aggregate struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Policy    Policy    `json:"policy"`
	Inputs    InputSet  `json:"inputs"`
	Links     []Link    `json:"links"`

	// Evidence is the raw evidence, sorted by ID. It is never pruned.
	Evidence []Evidence `json:"evidence"`

	// Resolutions are sorted by subject, then source.
	Resolutions []Resolution `json:"resolutions"`

	// Counters are keyed by subject key.
	Counters map[string]Counters `json:"counters"`

	// Attributed are keyed by seed key and include the seed's aliases.
	Attributed map[string]Counters `json:"attributed"`

	// Partial is set when the run was cancelled in partial-results mode.
	Partial bool `json:"partial,omitempty"`

	frozen bool
}

// NewAggregate creates the empty shell of a run.
func NewAggregate(runID string, createdAt time.Time, policy Policy, inputs *InputSet) *Aggregate {
	return &Aggregate{
		RunID:     runID,
		CreatedAt: createdAt.UTC(),
		Policy:    policy,
		Inputs:    *inputs,
		Links:     []Link{},
		Evidence:  []Evidence{},
	}
}

// Frozen reports whether the aggregate was frozen.
func (a *Aggregate) Frozen() bool {
	return a.frozen
}

func (a *Aggregate) mutable() error {
	if a.frozen {
		return fmt.Errorf("%w: aggregate %s is frozen", ErrAggregateConsistency, a.RunID)
	}
	return nil
}

// SetCorrelation stores the output of the correlation engine.
func (a *Aggregate) SetCorrelation(inputs InputSet, links []Link, evidence []Evidence, resolutions []Resolution) error {
	if err := a.mutable(); err != nil {
		return err
	}
	a.Inputs = inputs
	a.Links = append([]Link{}, links...)
	a.Evidence = append([]Evidence{}, evidence...)
	a.Resolutions = append([]Resolution{}, resolutions...)
	return nil
}

// SetResolutions replaces the resolutions, typically with filtered ones.
func (a *Aggregate) SetResolutions(resolutions []Resolution) error {
	if err := a.mutable(); err != nil {
		return err
	}
	a.Resolutions = append([]Resolution{}, resolutions...)
	return nil
}

// MarkPartial flags the aggregate as built from a cancelled run.
func (a *Aggregate) MarkPartial() error {
	if err := a.mutable(); err != nil {
		return err
	}
	a.Partial = true
	return nil
}

// Origin returns the seed a subject is attributed to.
// A seed is its own origin; an alias resolves through its link.
func (a *Aggregate) Origin(subject string) (string, bool) {
	if _, ok := a.Inputs.Seed(subject); ok {
		return subject, true
	}
	for _, l := range a.Links {
		if l.Alias == subject {
			return l.Origin, true
		}
	}
	return "", false
}

// Validate checks the orphan invariant: every link's origin is a seed,
// every alias has exactly one link, and every evidence and resolution
// subject is a seed or a linked alias.
func (a *Aggregate) Validate() error {
	linkCount := make(map[string]int, len(a.Links))
	for _, l := range a.Links {
		if _, ok := a.Inputs.Seed(l.Origin); !ok {
			return fmt.Errorf("%w: link %s -> %s has a non-seed origin", ErrAggregateConsistency, l.Alias, l.Origin)
		}
		linkCount[l.Alias]++
	}
	for alias, n := range linkCount {
		if n != 1 {
			return fmt.Errorf("%w: alias %s has %d links", ErrAggregateConsistency, alias, n)
		}
		if _, ok := a.Inputs.Seed(alias); ok {
			return fmt.Errorf("%w: alias %s is also a seed", ErrAggregateConsistency, alias)
		}
	}
	for _, id := range a.Inputs.Aliases {
		if linkCount[id.Key()] != 1 {
			return fmt.Errorf("%w: alias %s is not linked to a seed", ErrAggregateConsistency, id.Key())
		}
	}

	known := func(subject string) bool {
		if _, ok := a.Inputs.Seed(subject); ok {
			return true
		}
		return linkCount[subject] == 1
	}
	for _, ev := range a.Evidence {
		if !known(ev.Subject) {
			return fmt.Errorf("%w: orphan evidence %s for subject %s", ErrAggregateConsistency, ev.ID, ev.Subject)
		}
	}
	for _, r := range a.Resolutions {
		if !known(r.Subject) {
			return fmt.Errorf("%w: orphan resolution %s/%s", ErrAggregateConsistency, r.Source, r.Subject)
		}
	}
	return nil
}

// ComputeCounters recomputes the per-subject and per-seed tallies from the
// resolutions. Every seed and alias gets an entry, even with no resolution.
func (a *Aggregate) ComputeCounters() error {
	if err := a.mutable(); err != nil {
		return err
	}
	counters := make(map[string]Counters)
	attributed := make(map[string]Counters)
	for _, id := range a.Inputs.Subjects() {
		counters[id.Key()] = Counters{}
	}
	for _, id := range a.Inputs.Seeds {
		attributed[id.Key()] = Counters{}
	}

	for _, r := range a.Resolutions {
		c := counters[r.Subject]
		c.add(r)
		counters[r.Subject] = c

		origin, ok := a.Origin(r.Subject)
		if !ok {
			return fmt.Errorf("%w: resolution subject %s has no origin", ErrAggregateConsistency, r.Subject)
		}
		ac := attributed[origin]
		ac.add(r)
		attributed[origin] = ac
	}
	a.Counters = counters
	a.Attributed = attributed
	return nil
}

// Freeze validates the aggregate and marks it immutable.
func (a *Aggregate) Freeze() error {
	if a.frozen {
		return nil
	}
	if err := a.Validate(); err != nil {
		return err
	}
	a.frozen = true
	return nil
}

// Total sums the per-subject counters.
func (a *Aggregate) Total() Counters {
	var total Counters
	for _, c := range a.Counters {
		total.Found += c.Found
		total.NotFound += c.NotFound
		total.Ambiguous += c.Ambiguous
		total.Error += c.Error
		total.Excluded += c.Excluded
	}
	return total
}

// Matches returns the non-excluded resolutions with the given final outcome,
// in aggregate order.
func (a *Aggregate) Matches(outcome Outcome) []Resolution {
	var out []Resolution
	for _, r := range a.Resolutions {
		if !r.Excluded && r.FinalOutcome == outcome {
			out = append(out, r)
		}
	}
	return out
}

// Excluded returns the resolutions dropped by the heuristic filter.
func (a *Aggregate) Excluded() []Resolution {
	var out []Resolution
	for _, r := range a.Resolutions {
		if r.Excluded {
			out = append(out, r)
		}
	}
	return out
}

// EvidenceByID finds a raw evidence record.
func (a *Aggregate) EvidenceByID(id string) (Evidence, bool) {
	i := sort.Search(len(a.Evidence), func(i int) bool { return a.Evidence[i].ID >= id })
	if i < len(a.Evidence) && a.Evidence[i].ID == id {
		return a.Evidence[i], true
	}
	return Evidence{}, false
}

// SortEvidence orders evidence by ID.
func SortEvidence(evs []Evidence) {
	sort.Slice(evs, func(i, j int) bool { return evs[i].ID < evs[j].ID })
}

// SortResolutions orders resolutions by subject, then source.
func SortResolutions(rs []Resolution) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Subject != rs[j].Subject {
			return rs[i].Subject < rs[j].Subject
		}
		return rs[i].Source < rs[j].Source
	})
}
