package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoSeed is returned when neither a username nor an email is given.
	ErrNoSeed = errors.New("no seed specified: provide at least one username or email")

	// ErrInvalidTimeout is returned when the probe timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency ceiling is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidThresholds is returned when a strict mode threshold is
	// outside 0..1, the exclude threshold exceeds the demote threshold, or
	// the signal penalty is outside (0, 1].
	ErrInvalidThresholds = errors.New("invalid thresholds: need 0 <= exclude <= demote <= 1 and 0 < penalty <= 1")

	// ErrInvalidWeight is returned when a source weight falls outside 0..1.
	ErrInvalidWeight = errors.New("invalid source weight: must be within 0..1")

	// ErrInvalidNSFWPolicy is returned for an NSFW policy other than exclude or allow.
	ErrInvalidNSFWPolicy = errors.New("invalid NSFW policy: must be exclude or allow")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxies is returned when both --proxy and --tor are specified.
	ErrConflictingProxies = errors.New("conflicting proxies: --proxy and --tor cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
