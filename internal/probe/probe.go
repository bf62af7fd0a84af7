package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/source"
)

const (
	// DefaultUserAgent is sent when a descriptor does not set its own.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// DefaultMaxBodySize caps the body kept from each response.
	// Profile pages and API payloads fit well below it.
	DefaultMaxBodySize = 2 * 1024 * 1024
)

// Result is the raw outcome of one probe.
type Result struct {
	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// FinalURL is the URL after redirects.
	FinalURL string

	// Header holds the final response headers.
	Header http.Header

	// Body is the response body, capped at the prober's limit.
	// It is empty for HEAD probes.
	Body []byte

	// Elapsed is the wall time of the probe.
	Elapsed time.Duration
}

// Prober checks one source for one subject.
type Prober interface {
	Probe(ctx context.Context, subject model.Identifier, desc source.Descriptor) (*Result, error)
}

// Func adapts a function to the Prober interface.
type Func func(ctx context.Context, subject model.Identifier, desc source.Descriptor) (*Result, error)

// Probe implements Prober.
func (f Func) Probe(ctx context.Context, subject model.Identifier, desc source.Descriptor) (*Result, error) {
	return f(ctx, subject, desc)
}

// HTTPProber probes sources over HTTP with a shared client.
type HTTPProber struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// Option configures an HTTPProber.
type Option func(*HTTPProber)

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(p *HTTPProber) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the response body cap in bytes.
func WithMaxBodySize(n int64) Option {
	return func(p *HTTPProber) {
		if n > 0 {
			p.maxBodySize = n
		}
	}
}

// NewHTTPProber creates an HTTPProber around client. The client is shared by
// every probe of a run and must be safe for concurrent use.
func NewHTTPProber(client *http.Client, opts ...Option) *HTTPProber {
	p := &HTTPProber{
		client:      client,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, subject model.Identifier, desc source.Descriptor) (*Result, error) {
	start := time.Now()

	var body io.Reader
	if b := desc.RequestBody(subject); b != "" {
		body = strings.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, desc.HTTPMethod(), desc.CheckURL(subject), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range desc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &Result{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Header:     resp.Header,
	}
	if req.Method != http.MethodHead {
		result.Body, err = io.ReadAll(io.LimitReader(resp.Body, p.maxBodySize))
		if err != nil {
			return nil, err
		}
	}
	result.Elapsed = time.Since(start)
	return result, nil
}
