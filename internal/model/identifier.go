package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// IdentifierKind distinguishes the categories of seed identifiers.
type IdentifierKind string

const (
	// KindUsername is a handle probed against username sources.
	KindUsername IdentifierKind = "username"

	// KindEmail is an address probed against email sources.
	KindEmail IdentifierKind = "email"
)

// folder is shared because cases.Caser values are stateless for Fold.
var folder = cases.Fold()

// Identifier is one subject of a run: a seed given by the user or an alias
// derived from a seed.
type Identifier struct {
	// Kind is the identifier category.
	Kind IdentifierKind `json:"kind"`

	// Value is the normalized identifier as probed.
	Value string `json:"value"`

	// Derived is true for aliases generated from a seed.
	// Derived identifiers are never promoted to seeds.
	Derived bool `json:"derived,omitempty"`
}

// Key returns the subject key used by evidence and links.
// Keys are case-folded so "Torvalds" and "torvalds" are the same subject.
func (id Identifier) Key() string {
	return SubjectKey(id.Kind, id.Value)
}

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return id.Key()
}

// SubjectKey builds the subject key for a kind and value.
func SubjectKey(kind IdentifierKind, value string) string {
	return string(kind) + ":" + folder.String(value)
}

// NewUsername normalizes a username seed.
// Surrounding whitespace and a leading "@" are removed and the value is
// NFKC-normalized so visually identical handles compare equal.
func NewUsername(raw string) (Identifier, error) {
	v := strings.TrimSpace(norm.NFKC.String(raw))
	v = strings.TrimPrefix(v, "@")
	if v == "" {
		return Identifier{}, fmt.Errorf("%w: empty username", ErrInvalidInput)
	}
	if strings.ContainsAny(v, " \t\r\n/") {
		return Identifier{}, fmt.Errorf("%w: username %q contains whitespace or '/'", ErrInvalidInput, raw)
	}
	return Identifier{Kind: KindUsername, Value: v}, nil
}

// NewEmail normalizes an email seed.
// The address is lower-cased and must have a local part and a dotted domain.
func NewEmail(raw string) (Identifier, error) {
	v := strings.ToLower(strings.TrimSpace(norm.NFKC.String(raw)))
	local, domain, ok := strings.Cut(v, "@")
	if !ok {
		return Identifier{}, fmt.Errorf("%w: email %q is missing '@'", ErrInvalidInput, raw)
	}
	if local == "" || domain == "" || !strings.Contains(domain, ".") || strings.Contains(domain, "@") {
		return Identifier{}, fmt.Errorf("%w: invalid email address %q", ErrInvalidInput, raw)
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return Identifier{}, fmt.Errorf("%w: invalid email domain %q", ErrInvalidInput, raw)
	}
	return Identifier{Kind: KindEmail, Value: v}, nil
}

// LocalPart returns the part of an email before "@".
// It returns an empty string for non-email identifiers.
func (id Identifier) LocalPart() string {
	if id.Kind != KindEmail {
		return ""
	}
	local, _, _ := strings.Cut(id.Value, "@")
	return local
}
