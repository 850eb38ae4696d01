package config

import "context"

// Loader is the interface for a format-specific manifest loader.
type Loader interface {
	// Load reads the manifest from a file or directory of files, translates
	// it into the format-agnostic model, and validates its integrity.
	Load(ctx context.Context, path string) (*Model, error)
}
