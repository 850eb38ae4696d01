// Package headers deploys the header trees a consumer of the prebuilt
// archive compiles against: registry library headers, the Arduino core, and
// the ESP-IDF component includes.
package headers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/harvest"
	"github.com/espforge/espforge/internal/registry"
)

// PlatformIO package directory names the deployments read from.
const (
	arduinoCorePackage = "framework-arduinoespressif32"
	arduinoSDKPackage  = "framework-arduinoespressif32-libs"
	espidfPackage      = "framework-espidf"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the headers stage.
type Input struct {
	Bundle      string
	Framework   string
	LibdepsDir  string
	IncludeDir  string
	PackagesDir string
	MCU         string
	Libraries   []*config.Library
}

// OnStageHeaders is the handler for the headers stage.
func OnStageHeaders(ctx context.Context, rawInput any) error {
	input, ok := rawInput.(*Input)
	if !ok {
		return fmt.Errorf("headers stage received input of type %T", rawInput)
	}

	switch input.Framework {
	case config.FrameworkArduino:
		return deployArduino(ctx, input)
	case config.FrameworkESPIDF:
		return deployESPIDF(ctx, input)
	default:
		return fmt.Errorf("headers stage: unsupported framework %q", input.Framework)
	}
}

func deployArduino(ctx context.Context, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	if len(input.Libraries) > 0 {
		if err := harvest.DeployLibraryHeaders(ctx, input.LibdepsDir, input.IncludeDir, input.Libraries); err != nil {
			return fmt.Errorf("bundle %s: %w", input.Bundle, err)
		}
	}

	corePkg := filepath.Join(input.PackagesDir, arduinoCorePackage)
	if err := harvest.DeployArduinoCore(ctx, corePkg, filepath.Join(input.IncludeDir, "arduino")); err != nil {
		return fmt.Errorf("bundle %s: %w", input.Bundle, err)
	}

	// Newer cores ship the pre-linked ESP-IDF tree as a separate package;
	// older ones bundle it inside the core under tools/sdk.
	sdkPkg := filepath.Join(input.PackagesDir, arduinoSDKPackage)
	if _, err := os.Stat(sdkPkg); err != nil {
		logger.Warn("Arduino SDK package not installed, skipping SDK tree.", "package", arduinoSDKPackage)
		return nil
	}
	return harvest.DeployArduinoSDK(ctx, sdkPkg, input.MCU, filepath.Join(input.IncludeDir, "esp-idf"))
}

func deployESPIDF(ctx context.Context, input *Input) error {
	idfPkg := filepath.Join(input.PackagesDir, espidfPackage)
	if err := harvest.DeployIDFComponents(ctx, idfPkg, filepath.Join(input.IncludeDir, "esp-idf")); err != nil {
		return fmt.Errorf("bundle %s: %w", input.Bundle, err)
	}
	return nil
}

// Register registers the handler with the pipeline.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("OnStageHeaders", &registry.Handler{Fn: OnStageHeaders})
}
