// Package ldscripts copies the SDK's linker scripts and sdkconfig.h into the
// platform's prebuilt tree. It runs once per pipeline, after every staging
// build has installed its packages.
package ldscripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/harvest"
	"github.com/espforge/espforge/internal/registry"
)

const arduinoSDKPackage = "framework-arduinoespressif32-libs"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the linker script stage.
type Input struct {
	PackagesDir    string
	MCU            string
	LdDir          string
	SdkconfigDests []string
}

// OnStageLinkerScripts is the handler for the linker script stage.
func OnStageLinkerScripts(ctx context.Context, rawInput any) error {
	input, ok := rawInput.(*Input)
	if !ok {
		return fmt.Errorf("linker script stage received input of type %T", rawInput)
	}
	logger := ctxlog.FromContext(ctx)

	sdkPkg := filepath.Join(input.PackagesDir, arduinoSDKPackage)
	if _, err := os.Stat(sdkPkg); err != nil {
		logger.Warn("Arduino SDK package not installed, no linker scripts to copy.", "package", arduinoSDKPackage)
		return nil
	}
	return harvest.CopyLinkerScripts(ctx, sdkPkg, input.MCU, input.LdDir, input.SdkconfigDests)
}

// Register registers the handler with the pipeline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("OnStageLinkerScripts", &registry.Handler{Fn: OnStageLinkerScripts})
}
