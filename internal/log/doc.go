// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The SecureHandler masks:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - AI API keys, GitHub tokens and other token-shaped values
//   - Passwords, secrets and session identifiers by key name
//
// Even in verbose mode, sensitive values are masked so that logs can be
// shared. Subjects (usernames, emails) and their hashes are logged as is.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("analyst request", "api_key", key) // api_key=***REDACTED***
//	slog.SetDefault(logger)
package log
