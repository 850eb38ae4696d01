// Package scaffold creates the temporary PlatformIO staging project a
// bundle is built in.
package scaffold

import (
	"context"
	"fmt"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/pio"
	"github.com/espforge/espforge/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the scaffold stage.
type Input struct {
	StagingDir string
	Project    *pio.ProjectConfig
}

// OnStageScaffold is the handler for the scaffold stage.
func OnStageScaffold(ctx context.Context, rawInput any) error {
	input, ok := rawInput.(*Input)
	if !ok {
		return fmt.Errorf("scaffold stage received input of type %T", rawInput)
	}
	logger := ctxlog.FromContext(ctx)

	logger.Info("Scaffolding staging project.", "dir", input.StagingDir, "board", input.Project.Board, "framework", input.Project.Framework)
	if err := pio.Scaffold(input.StagingDir, input.Project); err != nil {
		return err
	}
	logger.Debug("Staging project ready.", "dir", input.StagingDir)
	return nil
}

// Register registers the handler with the pipeline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("OnStageScaffold", &registry.Handler{Fn: OnStageScaffold})
}
