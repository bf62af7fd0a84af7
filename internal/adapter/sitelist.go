package adapter

import (
	"strings"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

// normalizeSiteList applies a WhatsMyName rule. An account exists when the
// status equals e_code, e_string is in the body, the status differs from
// m_code and m_string is absent. The e_string match confirms the page type;
// confidence is raised when the subject also appears in a hit context.
func normalizeSiteList(subject model.Identifier, desc source.Descriptor, res *probe.Result) Verdict {
	rule := desc.Rule
	status := res.StatusCode
	if status != rule.ExistsCode {
		if v, ok := statusVerdict(status); ok {
			return v
		}
	}

	p := inspect(subject, desc, res)
	switch {
	case rule.MissingCode != 0 && status == rule.MissingCode:
		return p.verdict(model.OutcomeNotFound, confidenceHigh, "m_code")
	case rule.MissingString != "" && strings.Contains(p.body, rule.MissingString):
		return p.verdict(model.OutcomeNotFound, confidenceHigh, "m_string")
	case status != rule.ExistsCode:
		return p.verdict(model.OutcomeNotFound, confidenceFair, "e_code")
	case !strings.Contains(p.body, rule.ExistsString):
		return p.verdict(model.OutcomeNotFound, confidenceFair, "e_string")
	}

	if p.hasHit {
		return p.verdict(model.OutcomeFound, confidenceHigh, "e_string")
	}
	return p.verdict(model.OutcomeFound, confidenceLikely, "e_string")
}
