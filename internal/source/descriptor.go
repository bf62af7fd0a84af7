package source

import (
	"crypto/md5" //nolint:gosec // Gravatar and email lists address profiles by MD5
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/nao1215/idhunt/internal/model"
)

// Placeholder is the subject placeholder in URL templates and request bodies.
const Placeholder = "{account}"

// Kind selects the adapter that normalizes a source's responses.
type Kind string

const (
	// KindScraper is a generic profile page check with status and text heuristics.
	KindScraper Kind = "scraper"

	// KindSiteList is a WhatsMyName username entry.
	KindSiteList Kind = "site_list"

	// KindEmailList is a WhatsMyName-style email entry.
	KindEmailList Kind = "email_list"

	// KindSherlock is a Sherlock manifest entry.
	KindSherlock Kind = "sherlock"

	// KindGitHubAPI is the GitHub users API.
	KindGitHubAPI Kind = "github_api"

	// KindGravatarAPI is the Gravatar profile API.
	KindGravatarAPI Kind = "gravatar_api"
)

// Kinds lists every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindScraper, KindSiteList, KindEmailList, KindSherlock, KindGitHubAPI, KindGravatarAPI}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// InputOperation transforms the subject before it is placed in a template.
type InputOperation string

const (
	// OpNone uses the subject value unchanged.
	OpNone InputOperation = ""

	// OpLocalPart uses the part of an email before "@".
	OpLocalPart InputOperation = "local_part"

	// OpMD5 uses the hex MD5 digest of the subject (Gravatar style).
	OpMD5 InputOperation = "md5"

	// OpSHA256 uses the hex SHA-256 digest of the subject.
	OpSHA256 InputOperation = "sha256"
)

// Apply returns the transformed subject value.
func (op InputOperation) Apply(id model.Identifier) string {
	switch op {
	case OpLocalPart:
		if local := id.LocalPart(); local != "" {
			return local
		}
		return id.Value
	case OpMD5:
		sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(id.Value)))) //nolint:gosec
		return hex.EncodeToString(sum[:])
	case OpSHA256:
		sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(id.Value))))
		return hex.EncodeToString(sum[:])
	default:
		return id.Value
	}
}

// Valid reports whether op is known.
func (op InputOperation) Valid() bool {
	switch op {
	case OpNone, OpLocalPart, OpMD5, OpSHA256:
		return true
	default:
		return false
	}
}

// Rule is the detection rule of a descriptor. Each adapter kind reads the
// fields that belong to it and ignores the rest.
type Rule struct {
	// ExistsCode, ExistsString, MissingCode and MissingString are the
	// WhatsMyName e_code, e_string, m_code and m_string fields.
	ExistsCode    int
	ExistsString  string
	MissingCode   int
	MissingString string

	// ErrorTypes, ErrorCodes and ErrorMessages are the Sherlock errorType,
	// errorCode and errorMsg fields.
	ErrorTypes    []string
	ErrorCodes    []int
	ErrorMessages []string

	// MissingCodes are statuses a scraper treats as "no such account".
	MissingCodes []int

	// ExistsPattern confirms a hit when found in the body.
	ExistsPattern string

	// MissingPattern denies a hit when found in the body.
	MissingPattern string

	// MissingTitlePrefix denies a hit when og:title or the title starts with it.
	MissingTitlePrefix string

	// RequireOGTitle denies a hit when the page has no og:title.
	RequireOGTitle bool

	// subjectPattern is the compiled Sherlock regexCheck.
	subjectPattern *regexp.Regexp
}

// Descriptor describes one probe-able source.
type Descriptor struct {
	// Name identifies the source in evidence, e.g. "github" or "sherlock:GitLab".
	Name string

	// Kind selects the adapter.
	Kind Kind

	// Targets is the identifier kind the source accepts.
	Targets model.IdentifierKind

	// URLTemplate is the URL to request.
	URLTemplate string

	// ProfileURL is the human facing profile URL; URLTemplate is used when empty.
	ProfileURL string

	// Method is the HTTP method, GET when empty.
	Method string

	// Headers are sent with every request.
	Headers map[string]string

	// Body is the request body template for POST checks.
	Body string

	// Category is the WhatsMyName category, lower-cased.
	Category string

	// NSFW marks adult sources.
	NSFW bool

	// InputOperation transforms the subject before templating.
	InputOperation InputOperation

	// Rule is the detection rule.
	Rule Rule
}

// Validate checks that the descriptor can be probed.
func (d Descriptor) Validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidDescriptor)
	case !d.Kind.Valid():
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidDescriptor, d.Name, d.Kind)
	case d.Targets != model.KindUsername && d.Targets != model.KindEmail:
		return fmt.Errorf("%w: %s has unknown target kind %q", ErrInvalidDescriptor, d.Name, d.Targets)
	case !strings.Contains(d.URLTemplate, Placeholder) && !strings.Contains(d.Body, Placeholder):
		return fmt.Errorf("%w: %s has no %s placeholder", ErrInvalidDescriptor, d.Name, Placeholder)
	case !d.InputOperation.Valid():
		return fmt.Errorf("%w: %s has unknown input operation %q", ErrInvalidDescriptor, d.Name, d.InputOperation)
	}
	switch d.HTTPMethod() {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		return fmt.Errorf("%w: %s has unsupported method %q", ErrInvalidDescriptor, d.Name, d.Method)
	}
	return nil
}

// Accepts reports whether the descriptor should be probed for id.
func (d Descriptor) Accepts(id model.Identifier) bool {
	if id.Kind != d.Targets {
		return false
	}
	if d.Rule.subjectPattern != nil && !d.Rule.subjectPattern.MatchString(d.Account(id)) {
		return false
	}
	return true
}

// Account returns the subject value after the input operation.
func (d Descriptor) Account(id model.Identifier) string {
	return d.InputOperation.Apply(id)
}

// CheckURL returns the URL to request for id.
// The account is escaped for the URL component it lands in.
func (d Descriptor) CheckURL(id model.Identifier) string {
	return fillURL(d.URLTemplate, d.Account(id))
}

// Profile returns the human facing profile URL for id.
func (d Descriptor) Profile(id model.Identifier) string {
	if d.ProfileURL == "" {
		return d.CheckURL(id)
	}
	return fillURL(d.ProfileURL, d.Account(id))
}

// fillURL substitutes account into tmpl, path-escaped before the query
// and query-escaped after it.
func fillURL(tmpl, account string) string {
	path, query, hasQuery := strings.Cut(tmpl, "?")
	path = strings.ReplaceAll(path, Placeholder, url.PathEscape(account))
	if !hasQuery {
		return path
	}
	return path + "?" + strings.ReplaceAll(query, Placeholder, url.QueryEscape(account))
}

// RequestBody returns the templated request body, or "" for bodiless checks.
func (d Descriptor) RequestBody(id model.Identifier) string {
	return strings.ReplaceAll(d.Body, Placeholder, d.Account(id))
}

// HTTPMethod returns the upper-cased method, GET by default.
func (d Descriptor) HTTPMethod() string {
	if d.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(d.Method)
}

// WithSubjectPattern compiles a Sherlock-style regexCheck into the rule.
func (d Descriptor) WithSubjectPattern(pattern string) (Descriptor, error) {
	if pattern == "" {
		d.Rule.subjectPattern = nil
		return d, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return d, fmt.Errorf("%w: %s has invalid regexCheck: %w", ErrInvalidDescriptor, d.Name, err)
	}
	d.Rule.subjectPattern = re
	return d, nil
}
