// Package piobuild runs the PlatformIO build inside a staging project.
package piobuild

import (
	"context"
	"fmt"

	"github.com/espforge/espforge/internal/execx"
	"github.com/espforge/espforge/internal/pio"
	"github.com/espforge/espforge/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the build stage.
type Input struct {
	StagingDir string
	Runner     execx.Runner
}

// OnStageBuild is the handler for the build stage.
func OnStageBuild(ctx context.Context, rawInput any) error {
	input, ok := rawInput.(*Input)
	if !ok {
		return fmt.Errorf("build stage received input of type %T", rawInput)
	}
	return pio.Build(ctx, input.Runner, input.StagingDir)
}

// Register registers the handler with the pipeline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("OnStageBuild", &registry.Handler{Fn: OnStageBuild})
}
