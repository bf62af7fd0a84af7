package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/nao1215/idhunt/internal/model"
)

const (
	// DefaultBaseURL is the DeepSeek OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.deepseek.com/v1"

	// DefaultModel is the default chat model.
	DefaultModel = "deepseek-chat"

	// DefaultTimeout bounds one analysis request.
	DefaultTimeout = 120 * time.Second
)

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = errors.New("analyst API key is not set")

const systemPrompt = "You are an OSINT analyst. You receive an identity aggregate as JSON. " +
	"Use only the evidence it contains. Reply with a JSON object with the keys " +
	`"summary" (string), "highlights" (array of strings) and "confidence" (number from 0 to 1).`

// Analysis is the analyst's output for one aggregate.
type Analysis struct {
	Model       string    `json:"model"`
	Summary     string    `json:"summary"`
	Highlights  []string  `json:"highlights,omitempty"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`

	// Raw is the provider response, kept only when requested.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Analyst analyzes a serialized aggregate.
type Analyst interface {
	Analyze(ctx context.Context, aggregate []byte) (*Analysis, error)
}

// Config holds the connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// KeepRaw stores the raw provider response in Analysis.Raw.
	KeepRaw bool
}

// Client is an Analyst backed by go-openai.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	keepRaw bool
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}

	c := &Client{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		keepRaw: cfg.KeepRaw,
		now:     time.Now,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Analyze implements Analyst. Every failure wraps model.ErrAnalysisService.
func (c *Client) Analyze(ctx context.Context, aggregate []byte) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("requesting analysis", "model", c.model, "bytes", len(aggregate))
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(aggregate)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAnalysisService, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: provider returned no choices", model.ErrAnalysisService)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: provider returned empty content", model.ErrAnalysisService)
	}

	a := parseContent(content)
	a.Model = resp.Model
	if a.Model == "" {
		a.Model = c.model
	}
	a.GeneratedAt = c.now().UTC()
	if c.keepRaw {
		raw, err := json.Marshal(resp)
		if err == nil {
			a.Raw = raw
		}
	}
	c.logger.Debug("analysis received", "model", a.Model, "finish_reason", resp.Choices[0].FinishReason)
	return a, nil
}

type analysisReply struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Confidence float64  `json:"confidence"`
}

// parseContent reads the JSON reply. Providers that ignore the response
// format get their text used as the summary.
func parseContent(content string) *Analysis {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(content, "```json"), "```")
	var reply analysisReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &reply); err != nil || reply.Summary == "" {
		return &Analysis{Summary: content}
	}
	conf := reply.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return &Analysis{Summary: reply.Summary, Highlights: reply.Highlights, Confidence: conf}
}
