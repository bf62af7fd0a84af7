package model

import (
	"fmt"
	"sort"
	"strings"
)

// LinkReason explains why a derived alias was probed.
type LinkReason string

const (
	// ReasonEmailLocalPart marks an alias taken from the local part of an email seed.
	ReasonEmailLocalPart LinkReason = "email_local_part"

	// ReasonDiscoveredInProfile marks an alias found in the payload of a
	// profile that belongs to a seed (for example a linked Twitter handle).
	ReasonDiscoveredInProfile LinkReason = "discovered_in_profile"
)

// Link records that Alias was derived from Origin.
// Links attribute alias evidence back to a seed without merging identities.
type Link struct {
	// Alias is the subject key of the derived identifier.
	Alias string `json:"alias"`

	// Origin is the subject key of the seed the alias came from.
	Origin string `json:"origin"`

	// Reason is why the alias was derived.
	Reason LinkReason `json:"reason"`

	// Detail is a human readable note, e.g. "local part of user@example.com".
	Detail string `json:"detail,omitempty"`
}

// InputSet holds the seeds of one run and the aliases derived from them.
type InputSet struct {
	// Seeds are the identifiers supplied by the caller, sorted by key.
	Seeds []Identifier `json:"seeds"`

	// Aliases are derived identifiers, sorted by key.
	Aliases []Identifier `json:"aliases,omitempty"`
}

// NewInputSet validates and normalizes the seeds of a run.
// It fails with ErrInvalidInput when no seed is given or a seed is malformed.
// Duplicate seeds collapse into one.
func NewInputSet(usernames, emails []string) (*InputSet, error) {
	set := &InputSet{}
	seen := make(map[string]bool)

	add := func(id Identifier) {
		if seen[id.Key()] {
			return
		}
		seen[id.Key()] = true
		set.Seeds = append(set.Seeds, id)
	}

	for _, raw := range splitList(usernames) {
		id, err := NewUsername(raw)
		if err != nil {
			return nil, err
		}
		add(id)
	}
	for _, raw := range splitList(emails) {
		id, err := NewEmail(raw)
		if err != nil {
			return nil, err
		}
		add(id)
	}

	if len(set.Seeds) == 0 {
		return nil, fmt.Errorf("%w: provide at least one username or email", ErrInvalidInput)
	}

	sortIdentifiers(set.Seeds)
	return set, nil
}

// splitList accepts both repeated flags and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Subjects returns seeds followed by aliases.
func (s *InputSet) Subjects() []Identifier {
	out := make([]Identifier, 0, len(s.Seeds)+len(s.Aliases))
	out = append(out, s.Seeds...)
	return append(out, s.Aliases...)
}

// Seed reports whether key names a seed.
func (s *InputSet) Seed(key string) (Identifier, bool) {
	for _, id := range s.Seeds {
		if id.Key() == key {
			return id, true
		}
	}
	return Identifier{}, false
}

// Lookup finds a seed or alias by subject key.
func (s *InputSet) Lookup(key string) (Identifier, bool) {
	if id, ok := s.Seed(key); ok {
		return id, true
	}
	for _, id := range s.Aliases {
		if id.Key() == key {
			return id, true
		}
	}
	return Identifier{}, false
}

func sortIdentifiers(ids []Identifier) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Key() < ids[j].Key() })
}

// Deriver generates aliases from seeds, at most one level deep.
// Every alias is created once and gets exactly one Link; aliases of aliases
// and aliases that collide with a seed are refused.
type Deriver struct {
	inputs *InputSet
	links  []Link
	known  map[string]bool
}

// NewDeriver creates a Deriver over inputs. Aliases and links already in
// inputs (for example from a decoded aggregate) are honoured.
func NewDeriver(inputs *InputSet, existing []Link) *Deriver {
	d := &Deriver{
		inputs: inputs,
		links:  append([]Link(nil), existing...),
		known:  make(map[string]bool),
	}
	for _, id := range inputs.Subjects() {
		d.known[id.Key()] = true
	}
	return d
}

// Derive registers alias as derived from origin.
// It returns the new alias and true when the alias was created, or false
// when origin is not a seed, the alias is empty, or the alias already exists.
func (d *Deriver) Derive(origin string, alias Identifier, reason LinkReason, detail string) (Identifier, bool) {
	if _, ok := d.inputs.Seed(origin); !ok {
		return Identifier{}, false
	}
	if strings.TrimSpace(alias.Value) == "" {
		return Identifier{}, false
	}
	alias.Derived = true
	if d.known[alias.Key()] {
		return Identifier{}, false
	}
	d.known[alias.Key()] = true
	d.inputs.Aliases = append(d.inputs.Aliases, alias)
	sortIdentifiers(d.inputs.Aliases)
	d.links = append(d.links, Link{
		Alias:  alias.Key(),
		Origin: origin,
		Reason: reason,
		Detail: detail,
	})
	return alias, true
}

// DeriveLocalParts creates a username alias for each email seed's local part.
// A "+tag" sub-address suffix is dropped.
func (d *Deriver) DeriveLocalParts() []Identifier {
	var created []Identifier
	for _, seed := range d.inputs.Seeds {
		if seed.Kind != KindEmail {
			continue
		}
		local, _, _ := strings.Cut(seed.LocalPart(), "+")
		alias, err := NewUsername(local)
		if err != nil {
			continue
		}
		if id, ok := d.Derive(seed.Key(), alias, ReasonEmailLocalPart, "local part of "+seed.Value); ok {
			created = append(created, id)
		}
	}
	return created
}

// Links returns the links recorded so far, sorted by alias.
func (d *Deriver) Links() []Link {
	out := append([]Link(nil), d.links...)
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}
