package adapter

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

// Confidence levels shared by the adapters.
const (
	confidenceCertain = 0.95
	confidenceHigh    = 0.9
	confidenceGood    = 0.8
	confidenceLikely  = 0.75
	confidenceFair    = 0.65
	confidenceEven    = 0.5
	confidenceLow     = 0.4
	confidenceMinimal = 0.2
)

// Observation is one completed probe handed to the registry.
type Observation struct {
	Subject    model.Identifier
	Descriptor source.Descriptor
	Result     *probe.Result
	Err        error
	ObservedAt time.Time
}

// Discovery is an identifier found in a profile payload.
type Discovery struct {
	Identifier model.Identifier
	Detail     string
}

// Verdict is what an adapter concludes from a raw result.
type Verdict struct {
	Outcome    model.Outcome
	Confidence float64
	Signals    []model.Signal
	Payload    any
	Error      string
	Discovered []Discovery
}

// Output is the normalized form of one observation.
type Output struct {
	Evidence   model.Evidence
	Discovered []Discovery
}

// Adapter maps one source kind's raw results into a Verdict.
// Adapters are only called for probes that returned a response.
type Adapter interface {
	Normalize(subject model.Identifier, desc source.Descriptor, res *probe.Result) Verdict
}

// Func adapts a function to the Adapter interface.
type Func func(subject model.Identifier, desc source.Descriptor, res *probe.Result) Verdict

// Normalize implements Adapter.
func (f Func) Normalize(subject model.Identifier, desc source.Descriptor, res *probe.Result) Verdict {
	return f(subject, desc, res)
}

// Registry holds one adapter per source kind.
type Registry struct {
	adapters map[source.Kind]Adapter
}

// NewRegistry creates a registry with the adapters for every known kind.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[source.Kind]Adapter)}
	r.Register(source.KindScraper, Func(normalizeScraper))
	r.Register(source.KindSiteList, Func(normalizeSiteList))
	r.Register(source.KindEmailList, Func(normalizeSiteList))
	r.Register(source.KindSherlock, Func(normalizeSherlock))
	r.Register(source.KindGitHubAPI, Func(normalizeGitHub))
	r.Register(source.KindGravatarAPI, Func(normalizeGravatar))
	return r
}

// Register sets the adapter for kind, replacing any previous one.
func (r *Registry) Register(kind source.Kind, a Adapter) {
	r.adapters[kind] = a
}

// Normalize converts an observation into evidence.
// A probe error always yields exactly one error-outcome evidence; a
// timeout is told apart from other failures by the error text and the
// payload.
func (r *Registry) Normalize(obs Observation) (Output, error) {
	desc := obs.Descriptor

	var v Verdict
	switch {
	case obs.Err != nil:
		v = faultVerdict(obs.Err)
	case obs.Result == nil:
		v = faultVerdict(fmt.Errorf("%w: empty result", model.ErrProbeTransport))
	default:
		a, ok := r.adapters[desc.Kind]
		if !ok {
			v = Verdict{Outcome: model.OutcomeError, Error: fmt.Sprintf("no adapter for source kind %q", desc.Kind)}
			break
		}
		v = a.Normalize(obs.Subject, desc, obs.Result)
	}

	ev, err := model.NewEvidence(model.EvidenceInput{
		Source:     desc.Name,
		SourceKind: string(desc.Kind),
		Subject:    obs.Subject.Key(),
		Outcome:    v.Outcome,
		Confidence: v.Confidence,
		URL:        desc.Profile(obs.Subject),
		NSFW:       desc.NSFW,
		Signals:    v.Signals,
		Payload:    v.Payload,
		ObservedAt: obs.ObservedAt,
		Error:      v.Error,
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Evidence: ev, Discovered: v.Discovered}, nil
}

type faultPayload struct {
	Fault string `json:"fault"`
}

func faultVerdict(err error) Verdict {
	fault := "transport"
	if errors.Is(err, model.ErrProbeTimeout) {
		fault = "timeout"
	}
	return Verdict{
		Outcome: model.OutcomeError,
		Payload: faultPayload{Fault: fault},
		Error:   err.Error(),
	}
}

// statusVerdict handles the statuses every adapter treats the same way:
// rate limiting and server errors are faults, not answers. It returns
// false when the adapter should interpret the status itself.
func statusVerdict(status int) (Verdict, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		return Verdict{Outcome: model.OutcomeError, Payload: statusPayload{StatusCode: status}, Error: "rate limited (HTTP 429)"}, true
	case status >= http.StatusInternalServerError:
		return Verdict{Outcome: model.OutcomeError, Payload: statusPayload{StatusCode: status}, Error: fmt.Sprintf("server error (HTTP %d)", status)}, true
	default:
		return Verdict{}, false
	}
}

type statusPayload struct {
	StatusCode int `json:"status_code"`
}
