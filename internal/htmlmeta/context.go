package htmlmeta

import (
	"net/url"
	"strings"
)

// Context names where a subject string was found on a page.
type Context string

const (
	ContextTitle     Context = "title"
	ContextOGTitle   Context = "og_title"
	ContextCanonical Context = "canonical"
	ContextFinalURL  Context = "final_url"
)

// HitContext reports the first hit-indicating context of the page that
// contains subject, compared case-insensitively. URLs are compared on
// their path segments so that a subject in the query string does not count.
func (m *Metadata) HitContext(subject, finalURL string) (Context, bool) {
	needle := strings.ToLower(strings.TrimSpace(subject))
	if needle == "" {
		return "", false
	}
	if strings.Contains(strings.ToLower(m.Title), needle) {
		return ContextTitle, true
	}
	if strings.Contains(strings.ToLower(m.OGTitle), needle) {
		return ContextOGTitle, true
	}
	if pathHasSegment(m.Canonical, needle) {
		return ContextCanonical, true
	}
	if pathHasSegment(finalURL, needle) {
		return ContextFinalURL, true
	}
	return "", false
}

func pathHasSegment(raw, needle string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(u.Path, "/") {
		seg = strings.TrimPrefix(strings.ToLower(seg), "@")
		if seg == needle {
			return true
		}
	}
	return false
}

// GenericTitle reports whether the page title looks like an error or
// landing page rather than a profile.
func (m *Metadata) GenericTitle() bool {
	t := strings.ToLower(m.Title + " " + m.OGTitle)
	for _, marker := range genericMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

var genericMarkers = []string{
	"page not found",
	"not found",
	"404",
	"does not exist",
	"doesn't exist",
	"error",
	"sign in",
	"log in",
	"login",
}
