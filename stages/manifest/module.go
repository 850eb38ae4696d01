// Package manifest writes the prebuilt manifest describing every archive a
// pipeline run produced: file names, checksums, object counts, and the
// library versions compiled in. Consumers and release tooling read it to
// verify the prebuilt tree.
package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/pipeline"
	"github.com/espforge/espforge/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the manifest stage.
type Input struct {
	// ManifestPath is where the manifest JSON is written.
	ManifestPath string

	// PrebuiltDir is the directory the bundle archives were written to.
	PrebuiltDir string

	Bundles map[string]*config.Bundle
	State   *pipeline.State
}

// BundleEntry is one bundle's record in the manifest.
type BundleEntry struct {
	Name      string            `json:"name"`
	Framework string            `json:"framework"`
	Archive   string            `json:"archive"`
	SHA256    string            `json:"sha256"`
	Objects   int               `json:"objects"`
	Libraries map[string]string `json:"libraries,omitempty"`
}

// Document is the manifest file's top-level structure.
type Document struct {
	Bundles []BundleEntry `json:"bundles"`
}

// OnStageManifest is the handler for the manifest stage.
func OnStageManifest(ctx context.Context, rawInput any) error {
	input, ok := rawInput.(*Input)
	if !ok {
		return fmt.Errorf("manifest stage received input of type %T", rawInput)
	}
	logger := ctxlog.FromContext(ctx)

	names := make([]string, 0, len(input.Bundles))
	for name := range input.Bundles {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := Document{}
	for _, name := range names {
		b := input.Bundles[name]
		archivePath := filepath.Join(input.PrebuiltDir, b.Output)
		sum, err := fileSHA256(archivePath)
		if err != nil {
			return fmt.Errorf("bundle %s: failed to checksum archive: %w", name, err)
		}

		entry := BundleEntry{
			Name:      name,
			Framework: b.Framework,
			Archive:   b.Output,
			SHA256:    sum,
			Objects:   input.State.ObjectCount(name),
		}
		if len(b.Libraries) > 0 {
			entry.Libraries = make(map[string]string, len(b.Libraries))
			for _, lib := range b.Libraries {
				entry.Libraries[lib.Name] = lib.Version
			}
		}
		doc.Bundles = append(doc.Bundles, entry)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(input.ManifestPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	logger.Info("Wrote prebuilt manifest.", "path", input.ManifestPath, "bundles", len(doc.Bundles))
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Register registers the handler with the pipeline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("OnStageManifest", &registry.Handler{Fn: OnStageManifest})
}
