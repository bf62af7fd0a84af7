package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/model"
)

// ErrInvalidDossier is returned when a document is neither a dossier nor
// a bare aggregate.
var ErrInvalidDossier = errors.New("invalid dossier")

// Dossier is the exported result of one run.
type Dossier struct {
	// Version is the idhunt version that produced the dossier.
	Version string `json:"version"`

	// Aggregate is the frozen Identity Aggregate.
	Aggregate *model.Aggregate `json:"aggregate"`

	// Analysis is the AI analysis; nil when it was not requested or failed.
	Analysis *analyst.Analysis `json:"analysis,omitempty"`

	// AnalysisError records why the analysis is missing.
	AnalysisError string `json:"analysis_error,omitempty"`
}

// NewDossier wraps a frozen aggregate.
func NewDossier(agg *model.Aggregate, version string) *Dossier {
	return &Dossier{Version: version, Aggregate: agg}
}

// SetAnalysis records the outcome of an analysis attempt.
func (d *Dossier) SetAnalysis(a *analyst.Analysis, err error) {
	d.Analysis = a
	d.AnalysisError = ""
	if err != nil {
		d.Analysis = nil
		d.AnalysisError = err.Error()
	}
}

// Marshal encodes the dossier as indented JSON with a trailing newline.
// Encoding a decoded dossier yields the same bytes.
func Marshal(d *Dossier) ([]byte, error) {
	return encode(d, "  ")
}

// MarshalAggregate encodes an aggregate compactly, as sent to the analyst.
func MarshalAggregate(agg *model.Aggregate) ([]byte, error) {
	return encode(agg, "")
}

func encode(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeDossier reads a dossier, or a bare aggregate, and returns it with a
// frozen aggregate. An aggregate that violates the orphan invariant fails
// with model.ErrAggregateConsistency.
func DecodeDossier(r io.Reader) (*Dossier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dossier: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDossier, err)
	}

	d := &Dossier{}
	if _, ok := probe["aggregate"]; ok {
		if err := json.Unmarshal(data, d); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDossier, err)
		}
	} else {
		var agg model.Aggregate
		if err := json.Unmarshal(data, &agg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDossier, err)
		}
		d.Aggregate = &agg
	}

	if d.Aggregate == nil || d.Aggregate.RunID == "" {
		return nil, fmt.Errorf("%w: missing aggregate run_id", ErrInvalidDossier)
	}
	if err := compactPayloads(d.Aggregate); err != nil {
		return nil, err
	}
	if err := d.Aggregate.Freeze(); err != nil {
		return nil, err
	}
	return d, nil
}

// compactPayloads undoes the indentation a pretty-printed export applies
// to evidence payloads, restoring the bytes PayloadHash was computed over.
func compactPayloads(agg *model.Aggregate) error {
	for i := range agg.Evidence {
		payload := agg.Evidence[i].Payload
		if len(payload) == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, payload); err != nil {
			return fmt.Errorf("%w: evidence %s payload: %w", ErrInvalidDossier, agg.Evidence[i].ID, err)
		}
		agg.Evidence[i].Payload = buf.Bytes()
	}
	return nil
}
