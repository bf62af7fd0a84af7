package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/sha3"
)

// Outcome is the canonical result vocabulary every adapter maps into.
type Outcome string

const (
	// OutcomeFound means the source confirmed an account for the subject.
	OutcomeFound Outcome = "found"

	// OutcomeNotFound means the source confirmed there is no account.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeAmbiguous means the source responded but a hit could not be
	// told apart from a generic page.
	OutcomeAmbiguous Outcome = "ambiguous"

	// OutcomeError means the probe failed (transport, timeout, malformed response).
	OutcomeError Outcome = "error"
)

// Valid reports whether o is one of the four canonical outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeFound, OutcomeNotFound, OutcomeAmbiguous, OutcomeError:
		return true
	default:
		return false
	}
}

// Signal is a heuristic hint an adapter observed while normalizing a result.
// Signals never change the outcome by themselves; strict mode uses them
// to lower the score of a match.
type Signal string

const (
	// SignalRedirected means the final URL left the profile path.
	SignalRedirected Signal = "redirected"

	// SignalSubjectAbsent means the subject string does not appear in any
	// hit-indicating context of the page.
	SignalSubjectAbsent Signal = "subject_absent"

	// SignalGenericPage means the page title looks like an error or landing page.
	SignalGenericPage Signal = "generic_page"

	// SignalStatusOnly means the source only tested the HTTP status.
	SignalStatusOnly Signal = "status_only"
)

// Evidence is one fact produced by one probe for one subject.
// Evidence is immutable once created by NewEvidence.
type Evidence struct {
	// ID is derived from the dedupe key (source, subject, outcome, payload hash).
	ID string `json:"id"`

	// Source is the descriptor name, e.g. "github" or "sherlock:GitLab".
	Source string `json:"source"`

	// SourceKind is the adapter family that produced the evidence.
	SourceKind string `json:"source_kind"`

	// Subject is the identifier key the evidence concerns.
	Subject string `json:"subject"`

	// Outcome is the normalized result.
	Outcome Outcome `json:"outcome"`

	// Confidence is on a 0.0 to 1.0 scale.
	Confidence float64 `json:"confidence"`

	// URL is the profile URL checked.
	URL string `json:"url,omitempty"`

	// NSFW is copied from the source descriptor.
	NSFW bool `json:"nsfw,omitempty"`

	// Signals are heuristic hints observed by the adapter, sorted.
	Signals []Signal `json:"signals,omitempty"`

	// Payload is opaque source metadata as compact JSON.
	Payload json.RawMessage `json:"payload,omitempty"`

	// PayloadHash is the SHA3-256 of Payload in hex.
	PayloadHash string `json:"payload_hash"`

	// ObservedAt is when the probe completed, in UTC.
	ObservedAt time.Time `json:"observed_at"`

	// Error describes the failure for OutcomeError evidence.
	Error string `json:"error,omitempty"`
}

// EvidenceInput carries the fields NewEvidence turns into an Evidence.
type EvidenceInput struct {
	Source     string
	SourceKind string
	Subject    string
	Outcome    Outcome
	Confidence float64
	URL        string
	NSFW       bool
	Signals    []Signal
	Payload    any
	ObservedAt time.Time
	Error      string
}

// NewEvidence builds an immutable Evidence record.
// The payload is marshalled to compact JSON without HTML escaping (map keys
// sorted by encoding/json) so that identical payloads always hash identically.
func NewEvidence(in EvidenceInput) (Evidence, error) {
	if !in.Outcome.Valid() {
		return Evidence{}, fmt.Errorf("invalid outcome %q", in.Outcome)
	}

	payload, err := encodePayload(in.Payload)
	if err != nil {
		return Evidence{}, fmt.Errorf("failed to encode payload for %s: %w", in.Source, err)
	}

	ev := Evidence{
		Source:      in.Source,
		SourceKind:  in.SourceKind,
		Subject:     in.Subject,
		Outcome:     in.Outcome,
		Confidence:  clamp01(in.Confidence),
		URL:         in.URL,
		NSFW:        in.NSFW,
		Signals:     normalizeSignals(in.Signals),
		Payload:     payload,
		PayloadHash: HashBytes(payload),
		ObservedAt:  in.ObservedAt.UTC(),
		Error:       in.Error,
	}
	ev.ID = ev.DedupeKey().ID()
	return ev, nil
}

func encodePayload(p any) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	var raw []byte
	switch v := p.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		raw = buf.Bytes()
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func normalizeSignals(in []Signal) []Signal {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Signal]bool, len(in))
	out := make([]Signal, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// HasSignal reports whether the evidence carries s.
func (e Evidence) HasSignal(s Signal) bool {
	return slices.Contains(e.Signals, s)
}

// DedupeKey identifies equivalent evidence.
type DedupeKey struct {
	Source      string
	Subject     string
	Outcome     Outcome
	PayloadHash string
}

// DedupeKey returns the composite key used for idempotent ingestion.
func (e Evidence) DedupeKey() DedupeKey {
	return DedupeKey{
		Source:      e.Source,
		Subject:     e.Subject,
		Outcome:     e.Outcome,
		PayloadHash: e.PayloadHash,
	}
}

// ID returns a stable identifier for the key.
func (k DedupeKey) ID() string {
	sum := HashBytes([]byte(k.Source + "\x00" + k.Subject + "\x00" + string(k.Outcome) + "\x00" + k.PayloadHash))
	return sum[:24]
}

// HashBytes returns the hex SHA3-256 digest of b.
func HashBytes(b []byte) string {
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
