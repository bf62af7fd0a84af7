package model

import (
	"errors"
	"testing"
)

func TestNewUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: "torvalds", want: "torvalds"},
		{name: "trims and drops at sign", raw: "  @torvalds ", want: "torvalds"},
		{name: "keeps case in value", raw: "Torvalds", want: "Torvalds"},
		{name: "NFKC normalizes fullwidth", raw: "ｔｏｒｖａｌｄｓ", want: "torvalds"},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "only at sign", raw: "@", wantErr: true},
		{name: "inner space", raw: "linus torvalds", wantErr: true},
		{name: "slash", raw: "a/b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := NewUsername(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Value != tt.want {
				t.Errorf("expected %q, got %q", tt.want, id.Value)
			}
			if id.Kind != KindUsername {
				t.Errorf("expected username kind, got %s", id.Kind)
			}
		})
	}
}

func TestNewEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "lower-cases", raw: " User@Example.COM ", want: "user@example.com"},
		{name: "sub-address kept", raw: "user+tag@example.com", want: "user+tag@example.com"},
		{name: "missing at", raw: "user.example.com", wantErr: true},
		{name: "empty local part", raw: "@example.com", wantErr: true},
		{name: "undotted domain", raw: "user@localhost", wantErr: true},
		{name: "leading dot domain", raw: "user@.com", wantErr: true},
		{name: "trailing dot domain", raw: "user@example.", wantErr: true},
		{name: "two at signs", raw: "a@b@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := NewEmail(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Value != tt.want {
				t.Errorf("expected %q, got %q", tt.want, id.Value)
			}
		})
	}
}

func TestIdentifierKey(t *testing.T) {
	t.Parallel()

	t.Run("keys are case-folded", func(t *testing.T) {
		t.Parallel()

		a, _ := NewUsername("Torvalds")
		b, _ := NewUsername("torvalds")
		if a.Key() != b.Key() {
			t.Errorf("expected equal keys, got %q and %q", a.Key(), b.Key())
		}
		if a.Key() != "username:torvalds" {
			t.Errorf("unexpected key %q", a.Key())
		}
	})

	t.Run("kinds do not collide", func(t *testing.T) {
		t.Parallel()

		if SubjectKey(KindUsername, "x") == SubjectKey(KindEmail, "x") {
			t.Error("expected distinct keys per kind")
		}
	})

	t.Run("LocalPart", func(t *testing.T) {
		t.Parallel()

		id, _ := NewEmail("user@example.com")
		if got := id.LocalPart(); got != "user" {
			t.Errorf("expected user, got %q", got)
		}
		u, _ := NewUsername("user")
		if got := u.LocalPart(); got != "" {
			t.Errorf("expected empty local part for username, got %q", got)
		}
	})
}
