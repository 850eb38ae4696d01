// Package harvest relocates build outputs: it collects object files from a
// staging build, deploys header-only trees into the platform's prebuilt
// include directory, and copies linker scripts. It never compiles anything;
// every file it touches was produced by PlatformIO or ships with a package.
package harvest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/fsutil"
)

// appMainObject is the Arduino core object that carries app_main. Without it
// the linked firmware never reaches setup()/loop(), so its absence from an
// arduino bundle is worth a loud warning.
const appMainObject = "main.cpp.o"

// frameworkArduinoDir is the build subdirectory holding Arduino core objects.
const frameworkArduinoDir = "FrameworkArduino"

// CollectObjects finds every object file under buildDir, excluding the
// staging project's own sources and any extra directories the bundle names.
// It reports whether the Arduino core's app_main object was among them; the
// caller decides whether its absence matters for the bundle's framework.
func CollectObjects(ctx context.Context, buildDir string, excludeDirs []string) ([]string, bool, error) {
	logger := ctxlog.FromContext(ctx)

	objects, err := fsutil.FindFilesByExtension(buildDir, ".o")
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan build directory %s: %w", buildDir, err)
	}

	// The staging project's user code is never part of the library.
	excluded := map[string]bool{"src": true}
	for _, dir := range excludeDirs {
		excluded[dir] = true
	}

	var kept []string
	hasAppMain := false
	for _, obj := range objects {
		rel, err := filepath.Rel(buildDir, obj)
		if err != nil {
			return nil, false, err
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) > 0 && excluded[parts[0]] {
			continue
		}
		if parts[0] == frameworkArduinoDir && filepath.Base(rel) == appMainObject {
			hasAppMain = true
		}
		kept = append(kept, obj)
	}
	sort.Strings(kept)

	logger.Info("Collected object files.", "total", len(objects), "kept", len(kept))
	return kept, hasAppMain, nil
}

// AppMainObject names the Arduino core object that must be present for a
// linked firmware to reach setup()/loop().
func AppMainObject() string {
	return filepath.Join(frameworkArduinoDir, appMainObject)
}
