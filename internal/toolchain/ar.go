// Package toolchain locates Xtensa binutils and drives the archiver that
// combines the harvested object files into one static library.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/execx"
	"github.com/espforge/espforge/internal/fsutil"
)

// ArTool is the archiver binary name for the ESP32 toolchain.
const ArTool = "xtensa-esp32-elf-ar"

// archiveChunkSize caps how many object paths go into a single ar
// invocation, keeping the command line under the kernel's argv limit.
const archiveChunkSize = 50

// FindAr resolves the Xtensa archiver: PATH first, then a recursive search
// of the PlatformIO packages directory.
func FindAr(packagesDir string) (string, error) {
	if path, err := execx.LookPath(ArTool); err == nil {
		return path, nil
	}

	if packagesDir != "" {
		if _, err := os.Stat(packagesDir); err == nil {
			candidates, err := fsutil.FindFilesByName(packagesDir, ArTool)
			if err != nil {
				return "", fmt.Errorf("failed to search packages directory %s: %w", packagesDir, err)
			}
			if len(candidates) > 0 {
				return candidates[0], nil
			}
		}
	}

	return "", fmt.Errorf("%s not found on PATH or under %s; install the toolchain package first", ArTool, packagesDir)
}

// CreateArchive combines objects into the static library at outputLib. The
// archive is created with `ar rcs` and extended in chunks with `ar rs`.
func CreateArchive(ctx context.Context, runner execx.Runner, arPath, outputLib string, objects []string) error {
	logger := ctxlog.FromContext(ctx)

	if len(objects) == 0 {
		return fmt.Errorf("no object files to archive into %s", outputLib)
	}

	if err := os.MkdirAll(filepath.Dir(outputLib), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	// A partially written archive from a previous run must not be appended to.
	if err := os.RemoveAll(outputLib); err != nil {
		return fmt.Errorf("failed to remove stale archive: %w", err)
	}

	logger.Info("Creating static library.", "output", outputLib, "objects", len(objects))

	for start := 0; start < len(objects); start += archiveChunkSize {
		end := start + archiveChunkSize
		if end > len(objects) {
			end = len(objects)
		}

		flags := "rs"
		if start == 0 {
			flags = "rcs"
		}

		args := append([]string{flags, outputLib}, objects[start:end]...)
		if _, err := runner.Run(ctx, "", arPath, args...); err != nil {
			return fmt.Errorf("archiver failed on objects %d-%d: %w", start, end-1, err)
		}
	}

	logger.Info("Static library created.", "output", outputLib)
	return nil
}
