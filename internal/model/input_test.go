package model

import (
	"errors"
	"testing"
)

func TestNewInputSet(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()

		_, err := NewInputSet(nil, []string{" ", ""})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		t.Parallel()

		_, err := NewInputSet([]string{"alice"}, []string{"not-an-email"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("accepts usernames only", func(t *testing.T) {
		t.Parallel()

		set, err := NewInputSet([]string{"torvalds"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(set.Seeds) != 1 {
			t.Fatalf("expected 1 seed, got %d", len(set.Seeds))
		}
	})

	t.Run("splits comma lists and collapses duplicates", func(t *testing.T) {
		t.Parallel()

		set, err := NewInputSet([]string{"bob, alice", "Alice"}, []string{"a@example.com,A@example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"email:a@example.com", "username:alice", "username:bob"}
		if len(set.Seeds) != len(want) {
			t.Fatalf("expected %d seeds, got %d", len(want), len(set.Seeds))
		}
		for i, key := range want {
			if set.Seeds[i].Key() != key {
				t.Errorf("seed %d: expected %s, got %s", i, key, set.Seeds[i].Key())
			}
		}
	})
}

func TestDeriver(t *testing.T) {
	t.Parallel()

	t.Run("local part of user@example.com is derived exactly once", func(t *testing.T) {
		t.Parallel()

		set, err := NewInputSet(nil, []string{"user@example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		d := NewDeriver(set, nil)

		created := d.DeriveLocalParts()
		if len(created) != 1 {
			t.Fatalf("expected 1 alias, got %d", len(created))
		}
		if created[0].Key() != "username:user" || !created[0].Derived {
			t.Errorf("unexpected alias %+v", created[0])
		}
		if again := d.DeriveLocalParts(); len(again) != 0 {
			t.Errorf("expected no new alias on second call, got %d", len(again))
		}

		links := d.Links()
		if len(links) != 1 {
			t.Fatalf("expected 1 link, got %d", len(links))
		}
		if links[0].Origin != "email:user@example.com" || links[0].Reason != ReasonEmailLocalPart {
			t.Errorf("unexpected link %+v", links[0])
		}
		if len(set.Aliases) != 1 {
			t.Errorf("expected alias recorded in input set, got %d", len(set.Aliases))
		}
	})

	t.Run("drops sub-address tag", func(t *testing.T) {
		t.Parallel()

		set, _ := NewInputSet(nil, []string{"user+news@example.com"})
		d := NewDeriver(set, nil)
		created := d.DeriveLocalParts()
		if len(created) != 1 || created[0].Value != "user" {
			t.Fatalf("expected alias user, got %+v", created)
		}
	})

	t.Run("alias equal to a seed is not created", func(t *testing.T) {
		t.Parallel()

		set, _ := NewInputSet([]string{"user"}, []string{"user@example.com"})
		d := NewDeriver(set, nil)
		if created := d.DeriveLocalParts(); len(created) != 0 {
			t.Errorf("expected no alias, got %+v", created)
		}
		if len(d.Links()) != 0 {
			t.Error("expected no link")
		}
	})

	t.Run("aliases are never derived from aliases", func(t *testing.T) {
		t.Parallel()

		set, _ := NewInputSet(nil, []string{"user@example.com"})
		d := NewDeriver(set, nil)
		created := d.DeriveLocalParts()

		next, _ := NewUsername("user_twitter")
		if _, ok := d.Derive(created[0].Key(), next, ReasonDiscoveredInProfile, ""); ok {
			t.Error("expected derivation from an alias to be refused")
		}
	})

	t.Run("existing links are honoured", func(t *testing.T) {
		t.Parallel()

		set, _ := NewInputSet(nil, []string{"user@example.com"})
		alias, _ := NewUsername("user")
		alias.Derived = true
		set.Aliases = []Identifier{alias}
		existing := []Link{{Alias: alias.Key(), Origin: "email:user@example.com", Reason: ReasonEmailLocalPart}}

		d := NewDeriver(set, existing)
		if created := d.DeriveLocalParts(); len(created) != 0 {
			t.Errorf("expected no alias, got %+v", created)
		}
		if len(d.Links()) != 1 {
			t.Errorf("expected 1 link, got %d", len(d.Links()))
		}
	})
}
