package config

import (
	"math"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/idhunt/internal/analyst"
	"github.com/nao1215/idhunt/internal/heuristic"
	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "idhunt"

	// DefaultTimeout bounds each probe. Profile pages answer in well under
	// a second; slow sources are recorded as errors rather than waited for.
	DefaultTimeout = 15 * time.Second

	// DefaultConcurrency is the process-wide ceiling of in-flight probes.
	DefaultConcurrency = 20

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// EnvAIAPIKey names the environment variable holding the AI API key.
	EnvAIAPIKey = "IDHUNT_AI_API_KEY"
)

// Config holds all configuration options of a run.
// It is populated from defaults, the config file and CLI flags, in that
// order, and passed to the commands rather than kept in global state.
type Config struct {
	// Usernames and Emails are the seeds. Comma separated values are split.
	Usernames []string
	Emails    []string

	// Timeout is the per-probe timeout.
	Timeout time.Duration

	// Concurrency is the maximum number of probes in flight.
	Concurrency int

	// RateLimit is the maximum number of probes started per second.
	// Zero disables the limiter.
	RateLimit float64

	// RateBurst is the limiter burst; values below one mean one.
	RateBurst int

	// Strict enables the heuristic re-scoring pass.
	Strict bool

	// NSFW decides whether NSFW sources count ("exclude" or "allow").
	NSFW model.NSFWPolicy

	// DemoteThreshold, ExcludeThreshold and SignalPenalty tune strict mode.
	DemoteThreshold  float64
	ExcludeThreshold float64
	SignalPenalty    float64

	// Weights overrides the reliability weight of sources by name.
	Weights map[string]float64

	// DeriveLocalPart probes the local part of every email seed as a username.
	DeriveLocalPart bool

	// Pivot probes identifiers discovered in seed profiles.
	Pivot bool

	// Categories keeps only site-list sources of these categories.
	Categories []string

	// UseBuiltin enables the builtin scraper and API sources.
	UseBuiltin bool

	// SiteListPath is a WhatsMyName username list (wmn-data.json).
	SiteListPath string

	// EmailListPath is a WhatsMyName-style email list.
	EmailListPath string

	// UseSherlock enables the Sherlock manifest.
	UseSherlock bool

	// SherlockPath is a local Sherlock data.json. When empty and UseSherlock
	// is set, the manifest is downloaded from SherlockURL into CacheDir.
	SherlockPath string
	SherlockURL  string

	// CacheDir holds downloaded manifests.
	CacheDir string

	// ProxyAddress routes every probe through a SOCKS5 proxy.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes every probe through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded daemon.
	TorStartupTimeout time.Duration

	// UserAgent is sent when a descriptor does not set its own.
	UserAgent string

	// MaxBodySize caps the body kept from each response.
	MaxBodySize int64

	// AI enables the AI analyst after assembly.
	AI bool

	// AIAPIKey, AIBaseURL, AIModel and AITimeout configure the analyst.
	// The key is normally read from IDHUNT_AI_API_KEY.
	AIAPIKey  string
	AIBaseURL string
	AIModel   string
	AITimeout time.Duration

	// KeepRawAnalysis keeps the raw AI response in JSON reports.
	KeepRawAnalysis bool

	// PartialResults assembles the evidence of a cancelled run instead of
	// discarding it.
	PartialResults bool

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .idhunt is searched in the current and home directories.
	ConfigFilePath string

	// Sources holds per-source settings loaded from the config file.
	Sources *File

	// JSONReport and MarkdownReport select the report format. They are
	// mutually exclusive; the terminal table is used when neither is set.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// ShowAmbiguous lists ambiguous matches in the terminal table.
	ShowAmbiguous bool

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB stores the dossier in the run history.
	SaveToDB bool

	// MetricsFile writes probe metrics in Prometheus text format.
	MetricsFile string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		Concurrency:       DefaultConcurrency,
		RateBurst:         1,
		NSFW:              model.NSFWExclude,
		DemoteThreshold:   heuristic.DefaultDemoteThreshold,
		ExcludeThreshold:  heuristic.DefaultExcludeThreshold,
		SignalPenalty:     heuristic.DefaultSignalPenalty,
		UseBuiltin:        true,
		SherlockURL:       source.DefaultSherlockURL,
		CacheDir:          XDGCacheDir(),
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         probe.DefaultUserAgent,
		MaxBodySize:       probe.DefaultMaxBodySize,
		AIBaseURL:         analyst.DefaultBaseURL,
		AIModel:           analyst.DefaultModel,
		AITimeout:         analyst.DefaultTimeout,
		DBDir:             XDGDataDir(),
	}
}

// ApplyEnv reads settings from the environment. A key already set (for
// example from the config file) is kept.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.AIAPIKey == "" {
		c.AIAPIKey = getenv(EnvAIAPIKey)
	}
}

// Policy returns the run policy recorded in the aggregate.
func (c *Config) Policy() model.Policy {
	var weights map[string]float64
	if len(c.Weights) > 0 {
		weights = make(map[string]float64, len(c.Weights))
		for k, v := range c.Weights {
			weights[k] = v
		}
	}
	return model.Policy{
		Strict:           c.Strict,
		NSFW:             c.NSFW,
		DemoteThreshold:  c.DemoteThreshold,
		ExcludeThreshold: c.ExcludeThreshold,
		SignalPenalty:    c.SignalPenalty,
		Weights:          weights,
		DeriveLocalPart:  c.DeriveLocalPart,
		Pivot:            c.Pivot,
	}
}

// AnalystConfig returns the settings of the AI analyst.
func (c *Config) AnalystConfig() analyst.Config {
	return analyst.Config{
		APIKey:  c.AIAPIKey,
		BaseURL: c.AIBaseURL,
		Model:   c.AIModel,
		Timeout: c.AITimeout,
		KeepRaw: c.KeepRawAnalysis,
	}
}

// XDGDataDir returns the XDG data directory for idhunt, where the run
// history database lives.
// On Linux: ~/.local/share/idhunt
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for idhunt.
// On Linux: ~/.config/idhunt
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for idhunt, where
// downloaded manifests are kept.
// On Linux: ~/.cache/idhunt
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid for a run.
// It returns the first violation found.
func (c *Config) Validate() error {
	if len(c.Usernames) == 0 && len(c.Emails) == 0 {
		return ErrNoSeed
	}
	return c.ValidateSettings()
}

// ValidateSettings checks everything but the seeds. Commands that do not
// probe (analyze, history) use it.
func (c *Config) ValidateSettings() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RateLimit < 0 || math.IsNaN(c.RateLimit) {
		return ErrInvalidRateLimit
	}

	if !c.NSFW.Valid() {
		return ErrInvalidNSFWPolicy
	}

	if !unit(c.DemoteThreshold) || !unit(c.ExcludeThreshold) || c.ExcludeThreshold > c.DemoteThreshold ||
		!(c.SignalPenalty > 0 && c.SignalPenalty <= 1) {
		return ErrInvalidThresholds
	}

	for _, w := range c.Weights {
		if !unit(w) {
			return ErrInvalidWeight
		}
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.ProxyAddress != "" && c.UseTor {
		return ErrConflictingProxies
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.AI && c.AIAPIKey == "" {
		return analyst.ErrMissingAPIKey
	}

	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
