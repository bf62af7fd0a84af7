package adapter

import (
	"slices"
	"strings"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

// normalizeSherlock applies a Sherlock manifest rule.
//
// errorType values are evaluated in the order response_url, status_code,
// message; the first applicable one decides existence, with a plain 2xx
// check as fallback. Status-based detection cannot tell a profile from a
// landing page, so those hits stay ambiguous unless the subject appears in
// a hit context.
func normalizeSherlock(subject model.Identifier, desc source.Descriptor, res *probe.Result) Verdict {
	if v, ok := statusVerdict(res.StatusCode); ok {
		return v
	}
	rule := desc.Rule
	status := res.StatusCode
	success := status >= 200 && status < 300

	p := inspect(subject, desc, res)

	var exists, byMessage bool
	decided := false
	if slices.Contains(rule.ErrorTypes, source.SherlockResponseURL) {
		exists, decided = success, true
	}
	if !decided && slices.Contains(rule.ErrorTypes, source.SherlockStatusCode) {
		exists = success && !slices.Contains(rule.ErrorCodes, status)
		decided = true
	}
	if !decided && slices.Contains(rule.ErrorTypes, source.SherlockMessage) {
		exists = !containsAny(p.body, rule.ErrorMessages)
		byMessage, decided = true, true
	}
	if !decided {
		exists = success
	}

	if !exists {
		return p.verdict(model.OutcomeNotFound, confidenceGood, strings.Join(rule.ErrorTypes, ","))
	}
	switch {
	case p.hasHit:
		return p.verdict(model.OutcomeFound, confidenceGood, "hit_context")
	case byMessage:
		return p.verdict(model.OutcomeFound, confidenceFair, source.SherlockMessage)
	default:
		v := p.verdict(model.OutcomeAmbiguous, confidenceEven, "status_only")
		v.Signals = append(v.Signals, model.SignalStatusOnly)
		return v
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
