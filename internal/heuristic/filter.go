package heuristic

import (
	"fmt"
	"math"
	"slices"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/source"
)

const (
	// DefaultDemoteThreshold demotes found resolutions scoring below it.
	DefaultDemoteThreshold = 0.60

	// DefaultExcludeThreshold excludes ambiguous resolutions scoring below it.
	DefaultExcludeThreshold = 0.35

	// DefaultSignalPenalty multiplies the score once per adapter signal.
	DefaultSignalPenalty = 0.75
)

// Reason codes recorded on filtered resolutions.
const (
	ReasonNSFW     = "nsfw_excluded"
	ReasonDemoted  = "demoted_below_threshold"
	ReasonExcluded = "excluded_below_threshold"
	ReasonConflict = "conflicting_outcomes"
)

// kindWeights is the reliability of each source family. Structured APIs
// and page scrapers with hit context rank above list-driven checks.
var kindWeights = map[source.Kind]float64{
	source.KindScraper:     1.0,
	source.KindGitHubAPI:   1.0,
	source.KindGravatarAPI: 1.0,
	source.KindSiteList:    0.9,
	source.KindEmailList:   0.9,
	source.KindSherlock:    0.8,
}

// KindWeight returns the default weight of a source kind.
// Unknown kinds weigh 1.0.
func KindWeight(kind source.Kind) float64 {
	if w, ok := kindWeights[kind]; ok {
		return w
	}
	return 1.0
}

// DefaultPolicy returns the policy defaults.
func DefaultPolicy() model.Policy {
	return model.Policy{
		NSFW:             model.NSFWExclude,
		DemoteThreshold:  DefaultDemoteThreshold,
		ExcludeThreshold: DefaultExcludeThreshold,
		SignalPenalty:    DefaultSignalPenalty,
	}
}

// Filter applies a policy to resolutions.
type Filter struct {
	policy  model.Policy
	signals map[string][]model.Signal
}

// NewFilter creates a filter. Zero thresholds and penalty fall back to the
// defaults. The policy is validated.
func NewFilter(policy model.Policy) (*Filter, error) {
	if policy.NSFW == "" {
		policy.NSFW = model.NSFWExclude
	}
	if policy.DemoteThreshold == 0 {
		policy.DemoteThreshold = DefaultDemoteThreshold
	}
	if policy.ExcludeThreshold == 0 {
		policy.ExcludeThreshold = DefaultExcludeThreshold
	}
	if policy.SignalPenalty == 0 {
		policy.SignalPenalty = DefaultSignalPenalty
	}
	if err := Validate(policy); err != nil {
		return nil, err
	}
	return &Filter{policy: policy}, nil
}

// Validate checks the ranges of a policy.
func Validate(p model.Policy) error {
	switch {
	case !p.NSFW.Valid():
		return fmt.Errorf("%w: unknown nsfw policy %q", ErrInvalidPolicy, p.NSFW)
	case !inUnit(p.DemoteThreshold) || !inUnit(p.ExcludeThreshold):
		return fmt.Errorf("%w: thresholds must be within 0..1", ErrInvalidPolicy)
	case p.ExcludeThreshold > p.DemoteThreshold:
		return fmt.Errorf("%w: exclude threshold %.2f above demote threshold %.2f",
			ErrInvalidPolicy, p.ExcludeThreshold, p.DemoteThreshold)
	case p.SignalPenalty <= 0 || p.SignalPenalty > 1:
		return fmt.Errorf("%w: signal penalty must be within (0, 1]", ErrInvalidPolicy)
	}
	for name, w := range p.Weights {
		if !inUnit(w) {
			return fmt.Errorf("%w: weight of %s is %v, must be within 0..1", ErrInvalidPolicy, name, w)
		}
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// Policy returns the effective policy.
func (f *Filter) Policy() model.Policy {
	return f.policy
}

// Weight returns the weight applied to a resolution's source.
func (f *Filter) Weight(r model.Resolution) float64 {
	if w, ok := f.policy.Weights[r.Source]; ok {
		return w
	}
	return KindWeight(source.Kind(r.SourceKind))
}

// Apply returns filtered copies of rs in the same order.
// evidence is used to look up the adapter signals a resolution stands on.
// The result depends only on its arguments.
func (f *Filter) Apply(rs []model.Resolution, evidence []model.Evidence) []model.Resolution {
	byID := make(map[string]model.Evidence, len(evidence))
	for _, ev := range evidence {
		byID[ev.ID] = ev
	}

	out := make([]model.Resolution, len(rs))
	for i, r := range rs {
		out[i] = f.apply(r, signalsOf(r, byID))
	}
	return out
}

// signalsOf returns the union of the signals of the evidence r stands on.
func signalsOf(r model.Resolution, byID map[string]model.Evidence) []model.Signal {
	var signals []model.Signal
	for _, id := range r.EvidenceIDs {
		for _, s := range byID[id].Signals {
			if !slices.Contains(signals, s) {
				signals = append(signals, s)
			}
		}
	}
	slices.Sort(signals)
	return signals
}

func (f *Filter) apply(r model.Resolution, signals []model.Signal) model.Resolution {
	r.Reasons = nil
	r.Excluded = false
	r.FinalOutcome = r.Outcome
	r.Score = r.Confidence

	if f.policy.Strict {
		r.Score = round(r.Confidence * f.Weight(r) * math.Pow(f.policy.SignalPenalty, float64(len(signals))))
		for _, s := range signals {
			r.Reasons = append(r.Reasons, "signal:"+string(s))
		}
		if r.Conflict {
			r.Reasons = append(r.Reasons, ReasonConflict)
		}
		if r.FinalOutcome == model.OutcomeFound && r.Score < f.policy.DemoteThreshold {
			r.FinalOutcome = model.OutcomeAmbiguous
			r.Reasons = append(r.Reasons, fmt.Sprintf("%s:%.2f<%.2f", ReasonDemoted, r.Score, f.policy.DemoteThreshold))
		}
		if r.FinalOutcome == model.OutcomeAmbiguous && r.Score < f.policy.ExcludeThreshold {
			r.Excluded = true
			r.Reasons = append(r.Reasons, fmt.Sprintf("%s:%.2f<%.2f", ReasonExcluded, r.Score, f.policy.ExcludeThreshold))
		}
	}

	if r.NSFW && f.policy.NSFW == model.NSFWExclude {
		r.Excluded = true
		r.Reasons = append(r.Reasons, ReasonNSFW)
	}
	return r
}

// round keeps scores stable in serialized output.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
