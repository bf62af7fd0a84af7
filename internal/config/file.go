package config

import (
	"maps"
	"strings"
	"time"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/source"
)

// SourceConfig holds settings for a single source.
type SourceConfig struct {
	// Cookie is sent as the Cookie header, e.g. "sessionid=abc".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request to the source.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Disabled removes the source from the run.
	Disabled bool `yaml:"disabled,omitempty"`
}

// SourcesSection selects the manifests of a run.
type SourcesSection struct {
	Builtin     *bool    `yaml:"builtin,omitempty"`
	SiteList    string   `yaml:"site_list,omitempty"`
	EmailList   string   `yaml:"email_list,omitempty"`
	Sherlock    *bool    `yaml:"sherlock,omitempty"`
	SherlockURL string   `yaml:"sherlock_url,omitempty"`
	Categories  []string `yaml:"categories,omitempty"`
}

// HeuristicsSection tunes correlation and strict mode.
type HeuristicsSection struct {
	Strict           *bool              `yaml:"strict,omitempty"`
	NSFW             string             `yaml:"nsfw,omitempty"`
	DemoteThreshold  float64            `yaml:"demote_threshold,omitempty"`
	ExcludeThreshold float64            `yaml:"exclude_threshold,omitempty"`
	SignalPenalty    float64            `yaml:"signal_penalty,omitempty"`
	Weights          map[string]float64 `yaml:"weights,omitempty"`
	DeriveLocalPart  *bool              `yaml:"derive_local_part,omitempty"`
	Pivot            *bool              `yaml:"pivot,omitempty"`
}

// NetworkSection configures probing.
type NetworkSection struct {
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	RateLimit   float64       `yaml:"rate_limit,omitempty"`
	RateBurst   int           `yaml:"rate_burst,omitempty"`
	Proxy       string        `yaml:"proxy,omitempty"`
	UserAgent   string        `yaml:"user_agent,omitempty"`
}

// AISection configures the AI analyst. The API key belongs in
// IDHUNT_AI_API_KEY; api_key is honoured for local setups.
type AISection struct {
	BaseURL string        `yaml:"base_url,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	APIKey  string        `yaml:"api_key,omitempty"`
}

// File represents the structure of the .idhunt configuration file.
type File struct {
	Sources    SourcesSection    `yaml:"sources,omitempty"`
	Heuristics HeuristicsSection `yaml:"heuristics,omitempty"`
	Network    NetworkSection    `yaml:"network,omitempty"`
	AI         AISection         `yaml:"ai,omitempty"`

	// Defaults apply to every source unless overridden in Sites.
	Defaults SourceConfig `yaml:"defaults,omitempty"`

	// Sites maps source names (e.g. "github", "wmn:GitLab") to their settings.
	Sites map[string]SourceConfig `yaml:"sites,omitempty"`
}

// GetSourceConfig returns the configuration for a source, merging the
// source-specific settings over the defaults.
func (f *File) GetSourceConfig(name string) SourceConfig {
	result := SourceConfig{
		Cookie:   f.Defaults.Cookie,
		Headers:  maps.Clone(f.Defaults.Headers),
		Disabled: f.Defaults.Disabled,
	}

	if sc, ok := f.Sites[name]; ok {
		if sc.Cookie != "" {
			result.Cookie = sc.Cookie
		}
		if len(sc.Headers) > 0 {
			if result.Headers == nil {
				result.Headers = make(map[string]string, len(sc.Headers))
			}
			maps.Copy(result.Headers, sc.Headers)
		}
		if sc.Disabled {
			result.Disabled = true
		}
	}
	return result
}

// Customize applies the per-source settings to descs: disabled sources are
// dropped, headers and cookies are merged over the descriptor's own headers.
func (f *File) Customize(descs []source.Descriptor) []source.Descriptor {
	out := make([]source.Descriptor, 0, len(descs))
	for _, d := range descs {
		sc := f.GetSourceConfig(d.Name)
		if sc.Disabled {
			continue
		}
		if len(sc.Headers) > 0 || sc.Cookie != "" {
			headers := maps.Clone(d.Headers)
			if headers == nil {
				headers = make(map[string]string, len(sc.Headers)+1)
			}
			maps.Copy(headers, sc.Headers)
			if sc.Cookie != "" {
				headers["Cookie"] = sc.Cookie
			}
			d.Headers = headers
		}
		out = append(out, d)
	}
	return out
}

// Apply copies every setting present in the file into c. Flags given on
// the command line are applied afterwards and win.
func (c *Config) Apply(f *File) {
	if f == nil {
		return
	}
	c.Sources = f

	s := f.Sources
	if s.Builtin != nil {
		c.UseBuiltin = *s.Builtin
	}
	setString(&c.SiteListPath, s.SiteList)
	setString(&c.EmailListPath, s.EmailList)
	if s.Sherlock != nil {
		c.UseSherlock = *s.Sherlock
	}
	setString(&c.SherlockURL, s.SherlockURL)
	if len(s.Categories) > 0 {
		c.Categories = append([]string(nil), s.Categories...)
	}

	h := f.Heuristics
	if h.Strict != nil {
		c.Strict = *h.Strict
	}
	if h.NSFW != "" {
		c.NSFW = model.NSFWPolicy(strings.ToLower(h.NSFW))
	}
	setFloat(&c.DemoteThreshold, h.DemoteThreshold)
	setFloat(&c.ExcludeThreshold, h.ExcludeThreshold)
	setFloat(&c.SignalPenalty, h.SignalPenalty)
	if len(h.Weights) > 0 {
		c.Weights = maps.Clone(h.Weights)
	}
	if h.DeriveLocalPart != nil {
		c.DeriveLocalPart = *h.DeriveLocalPart
	}
	if h.Pivot != nil {
		c.Pivot = *h.Pivot
	}

	n := f.Network
	if n.Timeout > 0 {
		c.Timeout = n.Timeout
	}
	if n.Concurrency > 0 {
		c.Concurrency = n.Concurrency
	}
	setFloat(&c.RateLimit, n.RateLimit)
	if n.RateBurst > 0 {
		c.RateBurst = n.RateBurst
	}
	setString(&c.ProxyAddress, n.Proxy)
	setString(&c.UserAgent, n.UserAgent)

	a := f.AI
	setString(&c.AIBaseURL, a.BaseURL)
	setString(&c.AIModel, a.Model)
	if a.Timeout > 0 {
		c.AITimeout = a.Timeout
	}
	setString(&c.AIAPIKey, a.APIKey)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
