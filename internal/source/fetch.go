package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultSherlockURL is where the Sherlock project publishes its manifest.
	DefaultSherlockURL = "https://raw.githubusercontent.com/sherlock-project/sherlock/master/sherlock_project/resources/data.json"

	// DefaultCacheMaxAge is how long a downloaded manifest is reused.
	DefaultCacheMaxAge = 24 * time.Hour

	// maxManifestSize bounds the size of a downloaded manifest.
	maxManifestSize = 32 * 1024 * 1024
)

// Fetcher downloads remote manifests into a cache directory.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithMaxAge sets how long a cached manifest is considered fresh.
func WithMaxAge(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.maxAge = d
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher that stores files under cacheDir.
func NewFetcher(client *http.Client, cacheDir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   client,
		cacheDir: cacheDir,
		maxAge:   DefaultCacheMaxAge,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the path of a cached copy of url stored as name.
// A fresh cache entry is reused. A stale entry is refreshed, and kept when
// the download fails. Without any cached copy a failed download returns
// ErrManifestFetch.
func (f *Fetcher) Fetch(ctx context.Context, url, name string) (string, error) {
	path := filepath.Join(f.cacheDir, name)

	info, statErr := os.Stat(path)
	if statErr == nil && f.now().Sub(info.ModTime()) < f.maxAge {
		f.logger.Debug("using cached manifest", "path", path)
		return path, nil
	}

	if err := f.download(ctx, url, path); err != nil {
		if statErr == nil {
			f.logger.Warn("manifest refresh failed, using stale cache", "url", url, "error", err)
			return path, nil
		}
		return "", fmt.Errorf("%w: %s: %w", ErrManifestFetch, url, err)
	}
	f.logger.Debug("downloaded manifest", "url", url, "path", path)
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // removed after rename or on failure

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxManifestSize)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
