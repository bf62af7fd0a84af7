package correlate

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/nao1215/idhunt/internal/model"
)

// Engine accumulates evidence and links for one run.
type Engine struct {
	inputs   *model.InputSet
	links    map[string]model.Link
	evidence map[string]model.Evidence
}

// NewEngine creates an engine over the run's input set.
// Aliases added to inputs later become valid subjects once their link is
// recorded with AddLink.
func NewEngine(inputs *model.InputSet) *Engine {
	return &Engine{
		inputs:   inputs,
		links:    make(map[string]model.Link),
		evidence: make(map[string]model.Evidence),
	}
}

// AddLink records the link of a derived alias.
// Adding the same link twice is a no-op; a second, different origin for
// the same alias, a non-seed origin or an alias that is a seed fails with
// ErrAggregateConsistency.
func (e *Engine) AddLink(l model.Link) error {
	if _, ok := e.inputs.Seed(l.Origin); !ok {
		return fmt.Errorf("%w: link origin %s is not a seed", model.ErrAggregateConsistency, l.Origin)
	}
	if _, ok := e.inputs.Seed(l.Alias); ok {
		return fmt.Errorf("%w: alias %s is a seed", model.ErrAggregateConsistency, l.Alias)
	}
	if prev, ok := e.links[l.Alias]; ok {
		if prev.Origin != l.Origin {
			return fmt.Errorf("%w: alias %s already linked to %s", model.ErrAggregateConsistency, l.Alias, prev.Origin)
		}
		return nil
	}
	e.links[l.Alias] = l
	return nil
}

// Known reports whether subject is a seed or a linked alias.
func (e *Engine) Known(subject string) bool {
	if _, ok := e.inputs.Seed(subject); ok {
		return true
	}
	_, ok := e.links[subject]
	return ok
}

// Ingest adds one evidence record. Evidence is deduplicated by its
// composite key, so ingesting the same record again changes nothing.
// Evidence for an unknown subject fails with ErrAggregateConsistency.
func (e *Engine) Ingest(ev model.Evidence) error {
	if !e.Known(ev.Subject) {
		return fmt.Errorf("%w: orphan evidence from %s for subject %s", model.ErrAggregateConsistency, ev.Source, ev.Subject)
	}
	if !ev.Outcome.Valid() {
		return fmt.Errorf("%w: evidence %s has outcome %q", model.ErrAggregateConsistency, ev.ID, ev.Outcome)
	}
	id := ev.DedupeKey().ID()
	if ev.ID != "" && ev.ID != id {
		return fmt.Errorf("%w: evidence %s does not match its dedupe key", model.ErrAggregateConsistency, ev.ID)
	}
	if _, ok := e.evidence[id]; ok {
		return nil
	}
	ev.ID = id
	e.evidence[id] = ev
	return nil
}

// Len returns the number of distinct evidence records.
func (e *Engine) Len() int {
	return len(e.evidence)
}

// Evidence returns all evidence sorted by ID.
func (e *Engine) Evidence() []model.Evidence {
	out := make([]model.Evidence, 0, len(e.evidence))
	for _, ev := range e.evidence {
		out = append(out, ev)
	}
	model.SortEvidence(out)
	return out
}

// Links returns the recorded links sorted by alias.
func (e *Engine) Links() []model.Link {
	out := make([]model.Link, 0, len(e.links))
	for _, l := range e.links {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b model.Link) int { return cmp.Compare(a.Alias, b.Alias) })
	return out
}

type pairKey struct {
	source  string
	subject string
}

// Resolve returns one resolution per (source, subject) pair, sorted by
// subject then source.
//
// Within a pair, error evidence is superseded as soon as any non-error
// evidence exists. Distinct non-error outcomes are kept and the pair
// resolves to ambiguous with Conflict set. Equal outcomes resolve to that
// outcome with the highest confidence.
func (e *Engine) Resolve() []model.Resolution {
	groups := make(map[pairKey][]model.Evidence)
	for _, ev := range e.Evidence() {
		k := pairKey{source: ev.Source, subject: ev.Subject}
		groups[k] = append(groups[k], ev)
	}

	out := make([]model.Resolution, 0, len(groups))
	for _, evs := range groups {
		out = append(out, resolvePair(evs))
	}
	model.SortResolutions(out)
	return out
}

// resolvePair expects evs sorted by ID and non-empty.
func resolvePair(evs []model.Evidence) model.Resolution {
	first := evs[0]
	r := model.Resolution{
		Source:     first.Source,
		SourceKind: first.SourceKind,
		Subject:    first.Subject,
		URL:        first.URL,
	}

	var errs, live []model.Evidence
	for _, ev := range evs {
		r.NSFW = r.NSFW || ev.NSFW
		if ev.Outcome == model.OutcomeError {
			errs = append(errs, ev)
		} else {
			live = append(live, ev)
		}
	}

	basis := live
	if len(live) == 0 {
		basis = errs
	} else {
		for _, ev := range errs {
			r.Superseded = append(r.Superseded, ev.ID)
		}
	}

	outcomes := make(map[model.Outcome]bool)
	for _, ev := range basis {
		outcomes[ev.Outcome] = true
		r.EvidenceIDs = append(r.EvidenceIDs, ev.ID)
		if ev.Confidence > r.Confidence {
			r.Confidence = ev.Confidence
		}
		if ev.URL != "" && r.URL == "" {
			r.URL = ev.URL
		}
	}

	if len(outcomes) > 1 {
		r.Outcome = model.OutcomeAmbiguous
		r.Conflict = true
	} else {
		r.Outcome = basis[0].Outcome
	}

	// Pass-through until the heuristic filter runs.
	r.FinalOutcome = r.Outcome
	r.Score = r.Confidence
	return r
}
