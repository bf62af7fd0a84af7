package adapter

import (
	"net/http"
	"slices"
	"strings"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

// normalizeScraper interprets a generic profile page.
//
// Negative rules are checked first: missing status codes, a missing-title
// prefix, a missing body pattern and a required og:title. A positive body
// pattern or a hit context then confirms the profile; anything else is
// ambiguous.
func normalizeScraper(subject model.Identifier, desc source.Descriptor, res *probe.Result) Verdict {
	if v, ok := statusVerdict(res.StatusCode); ok {
		return v
	}
	rule := desc.Rule
	status := res.StatusCode

	if slices.Contains(rule.MissingCodes, status) || status == http.StatusNotFound || status == http.StatusGone {
		return Verdict{Outcome: model.OutcomeNotFound, Confidence: confidenceHigh, Payload: statusPayload{StatusCode: status}}
	}

	p := inspect(subject, desc, res)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		v := p.verdict(model.OutcomeAmbiguous, confidenceMinimal, "blocked")
		v.Signals = append(v.Signals, model.SignalStatusOnly)
		return v
	case status < 200 || status >= 300:
		return p.verdict(model.OutcomeAmbiguous, confidenceLow, "unexpected_status")
	}

	if prefix := rule.MissingTitlePrefix; prefix != "" {
		if strings.HasPrefix(p.meta.OGTitle, prefix) || strings.HasPrefix(p.meta.Title, prefix) {
			return p.verdict(model.OutcomeNotFound, confidenceGood, "missing_title_prefix")
		}
	}
	if rule.MissingPattern != "" && strings.Contains(p.body, rule.MissingPattern) {
		return p.verdict(model.OutcomeNotFound, confidenceGood, "missing_pattern")
	}
	if rule.RequireOGTitle && p.meta.OGTitle == "" {
		return p.verdict(model.OutcomeNotFound, confidenceFair, "missing_og_title")
	}

	if rule.ExistsPattern != "" && strings.Contains(p.body, rule.ExistsPattern) {
		return p.verdict(model.OutcomeFound, confidenceHigh, "exists_pattern")
	}
	if p.hasHit {
		return p.verdict(model.OutcomeFound, confidenceGood, "hit_context")
	}
	return p.verdict(model.OutcomeAmbiguous, confidenceLow, "status_only")
}
