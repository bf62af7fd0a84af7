package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/source"
)

// sherlockCacheName is the file name of the downloaded Sherlock manifest.
const sherlockCacheName = "sherlock-data.json"

// errNoSources is returned when the configuration leaves nothing to probe.
var errNoSources = errors.New("no sources to probe (enable the builtin sources or pass --site-list, --email-list or --sherlock)")

// manifestFile pairs a manifest path with its decoder.
type manifestFile struct {
	path string
	load func(io.Reader) (*source.Manifest, error)
}

// loadDescriptors assembles the sources of a run: builtin sources, the
// WhatsMyName lists and the Sherlock manifest, narrowed by category and by
// the per-source settings of the configuration file.
func loadDescriptors(ctx context.Context, cfg *config.Config, client *http.Client, logger *slog.Logger) ([]source.Descriptor, error) {
	var lists [][]source.Descriptor

	if cfg.UseBuiltin {
		lists = append(lists, source.Builtin())
	}

	manifests := []manifestFile{
		{cfg.SiteListPath, source.LoadWhatsMyName},
		{cfg.EmailListPath, source.LoadEmailList},
	}
	if cfg.UseSherlock {
		path := cfg.SherlockPath
		if path == "" {
			fetcher := source.NewFetcher(client, cfg.CacheDir, source.WithFetchLogger(logger))
			fetched, err := fetcher.Fetch(ctx, cfg.SherlockURL, sherlockCacheName)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch Sherlock manifest: %w", err)
			}
			path = fetched
		}
		manifests = append(manifests, manifestFile{path, source.LoadSherlock})
	}

	for _, m := range manifests {
		if m.path == "" {
			continue
		}
		manifest, err := source.LoadFile(m.path, m.load)
		if err != nil {
			return nil, fmt.Errorf("failed to load manifest: %w", err)
		}
		if len(manifest.Skipped) > 0 {
			logger.Warn("skipped invalid manifest entries",
				"manifest", manifest.Name,
				"count", len(manifest.Skipped),
			)
		}
		logger.Debug("manifest loaded", "manifest", manifest.Name, "sources", len(manifest.Descriptors))
		lists = append(lists, manifest.Descriptors)
	}

	descs := source.Select(source.Merge(lists...), source.Selection{Categories: cfg.Categories})
	if cfg.Sources != nil {
		descs = cfg.Sources.Customize(descs)
	}
	if len(descs) == 0 {
		return nil, errNoSources
	}
	return descs, nil
}
