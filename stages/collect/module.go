// Package collect harvests object files from a finished staging build and
// records them in the run state for the archive stage.
package collect

import (
	"context"
	"fmt"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/harvest"
	"github.com/espforge/espforge/internal/pipeline"
	"github.com/espforge/espforge/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the collect stage.
type Input struct {
	Bundle      string
	Framework   string
	BuildDir    string
	ExcludeDirs []string
	State       *pipeline.State
}

// OnStageCollect is the handler for the collect stage.
func OnStageCollect(ctx context.Context, rawInput any) error {
	input, ok := rawInput.(*Input)
	if !ok {
		return fmt.Errorf("collect stage received input of type %T", rawInput)
	}
	logger := ctxlog.FromContext(ctx)

	objects, hasAppMain, err := harvest.CollectObjects(ctx, input.BuildDir, input.ExcludeDirs)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("bundle %s: no object files found under %s", input.Bundle, input.BuildDir)
	}
	// Only arduino bundles carry the core's entry point. A firmware linked
	// against an archive without it never reaches setup()/loop().
	if input.Framework == config.FrameworkArduino && !hasAppMain {
		logger.Warn("Arduino core entry point missing from build output.", "bundle", input.Bundle, "object", harvest.AppMainObject())
	}

	input.State.SetObjects(input.Bundle, objects, hasAppMain)
	return nil
}

// Register registers the handler with the pipeline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("OnStageCollect", &registry.Handler{Fn: OnStageCollect})
}
