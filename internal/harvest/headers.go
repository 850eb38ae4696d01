package harvest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/fsutil"
)

// headerExtensions are the file types a header-only copy keeps.
var headerExtensions = map[string]bool{
	".h":   true,
	".hpp": true,
	".inc": true,
}

// toolsDataExtensions are the file types copied from the Arduino core's
// tools directory: scripts and data, never binaries.
var toolsDataExtensions = map[string]bool{
	".py":   true,
	".csv":  true,
	".ld":   true,
	".json": true,
	".txt":  true,
	".md":   true,
}

// binaryExtensions are always skipped, extension allowlist or not.
var binaryExtensions = map[string]bool{
	".exe":   true,
	".dll":   true,
	".so":    true,
	".dylib": true,
	".bin":   true,
}

// implicitHeaderDirs maps library directories PlatformIO pulls in as
// transitive dependencies to their deployed header directory. They are not
// named in the manifest but their headers are required to compile against
// the bundle.
var implicitHeaderDirs = map[string]string{
	"Adafruit BusIO": "Adafruit_BusIO",
}

// CopyHeaderTree recursively copies only header files from src into dst,
// preserving directory structure. A missing src is not an error; package
// layouts vary and the caller decides what is mandatory.
func CopyHeaderTree(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !headerExtensions[filepath.Ext(path)] {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return fsutil.CopyFile(path, filepath.Join(dst, rel))
	})
}

// DeployLibraryHeaders deploys the headers of every installed registry
// library into includeDir/libraries. Libraries the manifest does not map and
// that are not known implicit dependencies are skipped with a warning.
func DeployLibraryHeaders(ctx context.Context, libdepsDir, includeDir string, libs []*config.Library) error {
	logger := ctxlog.FromContext(ctx)

	entries, err := os.ReadDir(libdepsDir)
	if err != nil {
		return fmt.Errorf("libdeps directory not found: %w", err)
	}

	mapping := make(map[string]string, len(libs)+len(implicitHeaderDirs))
	for _, lib := range libs {
		mapping[lib.BareName()] = lib.HeaderDir()
	}
	for name, dir := range implicitHeaderDirs {
		if _, mapped := mapping[name]; !mapped {
			mapping[name] = dir
		}
	}

	librariesDir := filepath.Join(includeDir, "libraries")
	if err := os.MkdirAll(librariesDir, 0755); err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		headerDir, mapped := mapping[entry.Name()]
		if !mapped {
			logger.Warn("Installed library not mapped in manifest, skipping headers.", "library", entry.Name())
			continue
		}

		src := filepath.Join(libdepsDir, entry.Name())
		dst := filepath.Join(librariesDir, headerDir)

		// Prefer the conventional source layouts, fall back to the root.
		from := src
		if _, err := os.Stat(filepath.Join(src, "src")); err == nil {
			from = filepath.Join(src, "src")
		} else if _, err := os.Stat(filepath.Join(src, "include")); err == nil {
			from = filepath.Join(src, "include")
		}

		if err := CopyHeaderTree(from, dst); err != nil {
			return fmt.Errorf("failed to deploy headers for %s: %w", entry.Name(), err)
		}
		logger.Info("Deployed library headers.", "library", entry.Name(), "from", from)
	}
	return nil
}

// DeployArduinoCore deploys the Arduino core package's headers (cores,
// variants, bundled libraries) and its tools directory (scripts and data
// only) into destDir.
func DeployArduinoCore(ctx context.Context, corePkgDir, destDir string) error {
	logger := ctxlog.FromContext(ctx)

	if _, err := os.Stat(corePkgDir); err != nil {
		return fmt.Errorf("arduino core package not found: %w", err)
	}

	for _, sub := range []string{"cores", "variants", "libraries"} {
		if err := CopyHeaderTree(filepath.Join(corePkgDir, sub), filepath.Join(destDir, sub)); err != nil {
			return fmt.Errorf("failed to copy %s headers: %w", sub, err)
		}
	}

	if err := copyToolsData(filepath.Join(corePkgDir, "tools"), filepath.Join(destDir, "tools")); err != nil {
		return fmt.Errorf("failed to copy tools data: %w", err)
	}

	logger.Info("Deployed Arduino core headers.", "from", corePkgDir)
	return nil
}

// copyToolsData copies scripts and data files from the core's tools tree,
// skipping binary executables.
func copyToolsData(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if binaryExtensions[ext] {
			return nil
		}
		if ext != "" && !toolsDataExtensions[ext] {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return fsutil.CopyFile(path, filepath.Join(dst, rel))
	})
}

// DeployArduinoSDK copies the Arduino SDK package's per-MCU tree (headers,
// linker scripts, and the pre-linked ESP-IDF libraries needed at link time)
// into destDir.
func DeployArduinoSDK(ctx context.Context, sdkPkgDir, mcu, destDir string) error {
	logger := ctxlog.FromContext(ctx)

	mcuDir := filepath.Join(sdkPkgDir, mcu)
	if _, err := os.Stat(mcuDir); err != nil {
		return fmt.Errorf("arduino SDK package for %s not found: %w", mcu, err)
	}

	// The whole tree is kept: lib/ contains the pre-linked IDF archives
	// (WiFi, BLE, crypto) the final link cannot do without.
	if err := fsutil.CopyTree(mcuDir, filepath.Join(destDir, mcu)); err != nil {
		return fmt.Errorf("failed to copy SDK tree: %w", err)
	}

	logger.Info("Deployed Arduino SDK tree.", "mcu", mcu, "from", mcuDir)
	return nil
}

// DeployIDFComponents copies each ESP-IDF component's include directory into
// destDir/<component>.
func DeployIDFComponents(ctx context.Context, espidfPkgDir, destDir string) error {
	logger := ctxlog.FromContext(ctx)

	componentsDir := filepath.Join(espidfPkgDir, "components")
	entries, err := os.ReadDir(componentsDir)
	if err != nil {
		return fmt.Errorf("esp-idf components directory not found: %w", err)
	}

	copied := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		incDir := filepath.Join(componentsDir, entry.Name(), "include")
		if _, err := os.Stat(incDir); err != nil {
			continue
		}
		if err := fsutil.CopyTree(incDir, filepath.Join(destDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to copy component %s: %w", entry.Name(), err)
		}
		copied++
	}

	logger.Info("Deployed ESP-IDF component headers.", "components", copied)
	return nil
}

// CopyLinkerScripts copies the SDK's linker scripts for mcu into ldDir and
// deploys sdkconfig.h next to the include roots that need it.
func CopyLinkerScripts(ctx context.Context, sdkPkgDir, mcu, ldDir string, sdkconfigDests []string) error {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(ldDir, 0755); err != nil {
		return err
	}

	ldSrc := filepath.Join(sdkPkgDir, mcu, "ld")
	scripts, err := fsutil.FindFilesByExtension(ldSrc, ".ld")
	if err != nil {
		return fmt.Errorf("linker script directory not found: %w", err)
	}
	for _, script := range scripts {
		if err := fsutil.CopyFile(script, filepath.Join(ldDir, filepath.Base(script))); err != nil {
			return err
		}
	}
	logger.Info("Copied linker scripts.", "count", len(scripts))

	sdkconfigs, err := fsutil.FindFilesByName(filepath.Join(sdkPkgDir, mcu), "sdkconfig.h")
	if err != nil {
		return err
	}
	if len(sdkconfigs) == 0 {
		logger.Warn("sdkconfig.h not found in SDK package.")
		return nil
	}
	for _, dest := range sdkconfigDests {
		if err := fsutil.CopyFile(sdkconfigs[0], filepath.Join(dest, "sdkconfig.h")); err != nil {
			return err
		}
	}
	logger.Info("Deployed sdkconfig.h.", "destinations", len(sdkconfigDests))
	return nil
}
