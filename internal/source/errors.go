package source

import "errors"

var (
	// ErrInvalidDescriptor is returned when a descriptor misses a name, a kind
	// or the {account} placeholder.
	ErrInvalidDescriptor = errors.New("invalid source descriptor")

	// ErrManifestFormat is returned when a manifest cannot be decoded.
	ErrManifestFormat = errors.New("invalid manifest format")

	// ErrManifestFetch is returned when a remote manifest cannot be downloaded
	// and no cached copy exists.
	ErrManifestFetch = errors.New("failed to fetch manifest")
)
