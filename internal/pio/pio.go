package pio

import (
	"context"
	"fmt"
	"os"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/execx"
)

// Build runs `pio run` inside the staging project. The framework build is by
// far the longest step of the pipeline, so progress output is logged rather
// than swallowed.
func Build(ctx context.Context, runner execx.Runner, stagingDir string) error {
	logger := ctxlog.FromContext(ctx)

	if _, err := os.Stat(stagingDir); err != nil {
		return fmt.Errorf("staging project missing: %w", err)
	}

	logger.Info("Building staging project.", "dir", stagingDir)
	result, err := runner.Run(ctx, stagingDir, "pio", "run")
	if err != nil {
		return fmt.Errorf("pio run failed: %w", err)
	}
	logger.Debug("pio run finished.", "stdout_bytes", len(result.Stdout))
	return nil
}
