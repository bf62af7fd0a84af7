package adapter

import (
	"net/url"
	"strings"

	"github.com/nao1215/idhunt/internal/htmlmeta"
	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

// pagePayload is the enrichment stored with page-based evidence.
type pagePayload struct {
	StatusCode   int      `json:"status_code"`
	FinalURL     string   `json:"final_url,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Image        string   `json:"image,omitempty"`
	ProfileLinks []string `json:"profile_links,omitempty"`
	HitContext   string   `json:"hit_context,omitempty"`
	Category     string   `json:"category,omitempty"`
	Rule         string   `json:"rule,omitempty"`
}

// page bundles a parsed response with the hit analysis every page-based
// adapter needs.
type page struct {
	res      *probe.Result
	meta     *htmlmeta.Metadata
	body     string
	hit      htmlmeta.Context
	hasHit   bool
	signals  []model.Signal
	category string
}

func inspect(subject model.Identifier, desc source.Descriptor, res *probe.Result) *page {
	p := &page{
		res:      res,
		meta:     htmlmeta.ParseBytes(res.FinalURL, res.Body),
		body:     string(res.Body),
		category: desc.Category,
	}
	p.hit, p.hasHit = p.meta.HitContext(hitNeedle(subject, desc), res.FinalURL)
	if !p.hasHit {
		p.signals = append(p.signals, model.SignalSubjectAbsent)
	}
	if p.meta.GenericTitle() {
		p.signals = append(p.signals, model.SignalGenericPage)
	}
	if redirectedOff(desc.CheckURL(subject), res.FinalURL) {
		p.signals = append(p.signals, model.SignalRedirected)
	}
	return p
}

// hitNeedle is the string expected on a real profile page. For email
// sources that hash the subject the local part is the best visible hint.
func hitNeedle(subject model.Identifier, desc source.Descriptor) string {
	switch desc.InputOperation {
	case source.OpMD5, source.OpSHA256:
		return subject.LocalPart()
	default:
		return desc.Account(subject)
	}
}

// redirectedOff reports whether the request ended on a different host or
// on a path unrelated to the requested one.
func redirectedOff(requested, final string) bool {
	if final == "" || requested == final {
		return false
	}
	a, err1 := url.Parse(requested)
	b, err2 := url.Parse(final)
	if err1 != nil || err2 != nil {
		return false
	}
	if !strings.EqualFold(strings.TrimPrefix(a.Hostname(), "www."), strings.TrimPrefix(b.Hostname(), "www.")) {
		return true
	}
	return strings.TrimSuffix(a.Path, "/") != strings.TrimSuffix(b.Path, "/")
}

func (p *page) payload(rule string) pagePayload {
	pl := pagePayload{
		StatusCode:   p.res.StatusCode,
		FinalURL:     p.res.FinalURL,
		Title:        p.meta.Title,
		Description:  p.meta.Description,
		Image:        p.meta.OGImage,
		ProfileLinks: p.meta.ProfileLinks,
		Category:     p.category,
		Rule:         rule,
	}
	if p.hasHit {
		pl.HitContext = string(p.hit)
	}
	return pl
}

func (p *page) verdict(outcome model.Outcome, confidence float64, rule string) Verdict {
	v := Verdict{
		Outcome:    outcome,
		Confidence: confidence,
		Payload:    p.payload(rule),
	}
	if outcome == model.OutcomeFound || outcome == model.OutcomeAmbiguous {
		v.Signals = p.signals
	}
	return v
}
