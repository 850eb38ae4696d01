// Package archive combines a bundle's collected objects into its static
// library using the Xtensa archiver.
package archive

import (
	"context"
	"fmt"

	"github.com/espforge/espforge/internal/execx"
	"github.com/espforge/espforge/internal/pipeline"
	"github.com/espforge/espforge/internal/registry"
	"github.com/espforge/espforge/internal/toolchain"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the archive stage.
type Input struct {
	Bundle      string
	OutputLib   string
	PackagesDir string
	Runner      execx.Runner
	State       *pipeline.State
}

// OnStageArchive is the handler for the archive stage.
func OnStageArchive(ctx context.Context, rawInput any) error {
	input, ok := rawInput.(*Input)
	if !ok {
		return fmt.Errorf("archive stage received input of type %T", rawInput)
	}

	objects, collected := input.State.Objects(input.Bundle)
	if !collected {
		return fmt.Errorf("bundle %s: archive stage ran before collect", input.Bundle)
	}

	// The archiver is resolved here rather than at startup: the toolchain
	// package is installed by the first staging build.
	arPath, err := toolchain.FindAr(input.PackagesDir)
	if err != nil {
		return err
	}

	return toolchain.CreateArchive(ctx, input.Runner, arPath, input.OutputLib, objects)
}

// Register registers the handler with the pipeline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("OnStageArchive", &registry.Handler{Fn: OnStageArchive})
}
