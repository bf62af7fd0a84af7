package model

import (
	"errors"
	"testing"
	"time"
)

func newTestAggregate(t *testing.T) (*Aggregate, *Deriver) {
	t.Helper()

	set, err := NewInputSet([]string{"torvalds"}, []string{"user@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := NewDeriver(set, nil)
	d.DeriveLocalParts()
	agg := NewAggregate("run-1", time.Unix(0, 0), Policy{NSFW: NSFWExclude}, set)
	return agg, d
}

func mustEvidence(t *testing.T, source, subject string, outcome Outcome) Evidence {
	t.Helper()

	ev, err := NewEvidence(EvidenceInput{Source: source, SourceKind: "scraper", Subject: subject, Outcome: outcome})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ev
}

func TestAggregateValidate(t *testing.T) {
	t.Parallel()

	t.Run("accepts seed and linked alias evidence", func(t *testing.T) {
		t.Parallel()

		agg, d := newTestAggregate(t)
		evs := []Evidence{
			mustEvidence(t, "gitlab", "username:torvalds", OutcomeFound),
			mustEvidence(t, "gitlab", "username:user", OutcomeNotFound),
		}
		if err := agg.SetCorrelation(agg.Inputs, d.Links(), evs, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := agg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects orphan evidence", func(t *testing.T) {
		t.Parallel()

		agg, d := newTestAggregate(t)
		evs := []Evidence{mustEvidence(t, "gitlab", "username:someone-else", OutcomeFound)}
		_ = agg.SetCorrelation(agg.Inputs, d.Links(), evs, nil)
		if err := agg.Validate(); !errors.Is(err, ErrAggregateConsistency) {
			t.Errorf("expected ErrAggregateConsistency, got %v", err)
		}
	})

	t.Run("rejects alias without link", func(t *testing.T) {
		t.Parallel()

		agg, _ := newTestAggregate(t)
		_ = agg.SetCorrelation(agg.Inputs, nil, nil, nil)
		if err := agg.Validate(); !errors.Is(err, ErrAggregateConsistency) {
			t.Errorf("expected ErrAggregateConsistency, got %v", err)
		}
	})

	t.Run("rejects alias with two links", func(t *testing.T) {
		t.Parallel()

		agg, d := newTestAggregate(t)
		links := append(d.Links(), Link{Alias: "username:user", Origin: "username:torvalds"})
		_ = agg.SetCorrelation(agg.Inputs, links, nil, nil)
		if err := agg.Validate(); !errors.Is(err, ErrAggregateConsistency) {
			t.Errorf("expected ErrAggregateConsistency, got %v", err)
		}
	})
}

func TestAggregateCountersAndFreeze(t *testing.T) {
	t.Parallel()

	agg, d := newTestAggregate(t)
	resolutions := []Resolution{
		{Source: "gitlab", Subject: "username:torvalds", FinalOutcome: OutcomeFound},
		{Source: "keybase", Subject: "username:torvalds", FinalOutcome: OutcomeAmbiguous, Excluded: true},
		{Source: "gitlab", Subject: "username:user", FinalOutcome: OutcomeFound},
		{Source: "gravatar", Subject: "email:user@example.com", FinalOutcome: OutcomeError},
	}
	if err := agg.SetCorrelation(agg.Inputs, d.Links(), nil, resolutions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := agg.ComputeCounters(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c := agg.Counters["username:torvalds"]; c.Found != 1 || c.Excluded != 1 || c.Ambiguous != 0 {
		t.Errorf("unexpected torvalds counters %+v", c)
	}
	if c := agg.Attributed["email:user@example.com"]; c.Found != 1 || c.Error != 1 {
		t.Errorf("expected alias hit attributed to email seed, got %+v", c)
	}
	if _, ok := agg.Attributed["username:user"]; ok {
		t.Error("aliases must not have attributed counters of their own")
	}
	if total := agg.Total(); total.Total() != 4 {
		t.Errorf("expected 4 resolutions counted, got %d", total.Total())
	}

	if err := agg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !agg.Frozen() {
		t.Fatal("expected frozen aggregate")
	}
	if err := agg.SetResolutions(nil); !errors.Is(err, ErrAggregateConsistency) {
		t.Errorf("expected mutation after freeze to fail, got %v", err)
	}
	if err := agg.MarkPartial(); !errors.Is(err, ErrAggregateConsistency) {
		t.Errorf("expected mutation after freeze to fail, got %v", err)
	}
	if got := agg.Matches(OutcomeFound); len(got) != 2 {
		t.Errorf("expected 2 found matches, got %d", len(got))
	}
	if got := agg.Excluded(); len(got) != 1 {
		t.Errorf("expected 1 excluded, got %d", len(got))
	}

	found := agg.Matches(OutcomeFound)
	found[0].FinalOutcome = OutcomeError
	if got := agg.Matches(OutcomeFound); len(got) != 2 || got[0].FinalOutcome != OutcomeFound {
		t.Errorf("expected accessor results to be detached from the frozen aggregate, got %+v", got)
	}
}
