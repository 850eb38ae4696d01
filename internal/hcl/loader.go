package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/schema"
)

// defaultJobs is the worker count used when the manifest does not set one.
const defaultJobs = 2

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load orchestrates the manifest loading process. The path may be a single
// .hcl file or a directory; in a directory all .hcl files are parsed and
// their blocks merged into one model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	files, err := l.findManifestFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl manifest files found at %s", path)
	}
	logger.Debug("Discovered manifest files.", "count", len(files))

	model := &config.Model{
		Bundles: make(map[string]*config.Bundle),
	}

	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse manifest file %s: %w", file, diags)
		}

		var root schema.Manifest
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode manifest file %s: %w", file, diags)
		}

		if root.Settings != nil {
			if model.Settings != nil {
				return nil, fmt.Errorf("duplicate settings block in %s", file)
			}
			model.Settings = translateSettings(root.Settings)
		}

		for _, b := range root.Bundles {
			if _, exists := model.Bundles[b.Name]; exists {
				return nil, fmt.Errorf("duplicate bundle %q in %s", b.Name, file)
			}
			bundle, err := l.translateBundle(ctx, b)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Bundles[bundle.Name] = bundle
		}
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	logger.Debug("HCL loading complete.", "bundles", len(model.Bundles))
	return model, nil
}

// findManifestFiles returns all .hcl files under path, or path itself when
// it is a file.
func (l *Loader) findManifestFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing manifest path %s: %w", path, err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".hcl" {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	return files, nil
}
