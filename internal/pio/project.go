// Package pio scaffolds the temporary PlatformIO staging project and wraps
// invocations of the pio CLI. Everything that knows about PlatformIO's
// on-disk project layout lives here.
package pio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/espforge/espforge/internal/config"
)

// userMain is the minimal user code the staging project compiles. The
// Arduino core's own main.cpp (which carries app_main) only compiles when
// setup and loop are defined somewhere, and everything under src/ is
// excluded from the archive afterwards.
const userMain = `#include <Arduino.h>
void setup() {}
void loop() {}
`

// espidfMain is the equivalent for ESP-IDF environments, which expect an
// app_main entrypoint instead.
const espidfMain = `void app_main(void) {}
`

// ProjectConfig describes one staging project to scaffold.
type ProjectConfig struct {
	// PlatformDir is the platform checkout the project builds against,
	// referenced through a file:// URL in platformio.ini.
	PlatformDir string

	// Board is the environment's board ID. It doubles as the environment
	// name, so build output lands in .pio/build/<Board>.
	Board string

	// Framework selects the framework the environment compiles.
	Framework string

	// LibDeps are registry library specs (name@version) to compile in.
	LibDeps []string

	// BuildFlags are appended to the environment's build_flags.
	BuildFlags []string
}

// EnvName returns the PlatformIO environment name for the project.
func (c *ProjectConfig) EnvName() string {
	return c.Board
}

// RenderINI renders the project's platformio.ini.
func (c *ProjectConfig) RenderINI() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[env:%s]\n", c.EnvName())
	fmt.Fprintf(&b, "platform = file://%s\n", c.PlatformDir)
	fmt.Fprintf(&b, "board = %s\n", c.Board)
	fmt.Fprintf(&b, "framework = %s\n", c.Framework)
	b.WriteString("monitor_speed = 115200\n")

	if len(c.BuildFlags) > 0 {
		b.WriteString("build_flags =\n")
		for _, flag := range c.BuildFlags {
			fmt.Fprintf(&b, "    %s\n", flag)
		}
	}

	b.WriteString("lib_deps =\n")
	for _, dep := range c.LibDeps {
		fmt.Fprintf(&b, "    %s\n", dep)
	}
	return b.String()
}

// Scaffold recreates the staging project at dir from scratch. An existing
// directory is removed first so stale build output never leaks into the
// archive.
func Scaffold(dir string, cfg *ProjectConfig) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clean staging directory %s: %w", dir, err)
	}
	for _, sub := range []string{"src", "include"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create staging directory: %w", err)
		}
	}

	mainName, mainSrc := "user.cpp", userMain
	if cfg.Framework == config.FrameworkESPIDF {
		mainName, mainSrc = "main.c", espidfMain
	}
	if err := os.WriteFile(filepath.Join(dir, "src", mainName), []byte(mainSrc), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", mainName, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "platformio.ini"), []byte(cfg.RenderINI()), 0644); err != nil {
		return fmt.Errorf("failed to write platformio.ini: %w", err)
	}
	return nil
}

// BuildDir returns the build output directory for an environment inside a
// staging project.
func BuildDir(stagingDir, env string) string {
	return filepath.Join(stagingDir, ".pio", "build", env)
}

// LibdepsDir returns the directory PlatformIO installs registry libraries
// into for an environment.
func LibdepsDir(stagingDir, env string) string {
	return filepath.Join(stagingDir, ".pio", "libdeps", env)
}

// PackagesDir returns the PlatformIO packages directory, honoring
// PLATFORMIO_CORE_DIR when set.
func PackagesDir() string {
	if core := os.Getenv("PLATFORMIO_CORE_DIR"); core != "" {
		return filepath.Join(core, "packages")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".platformio", "packages")
}
