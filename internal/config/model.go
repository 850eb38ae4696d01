package config

import (
	"fmt"
	"strings"
)

// Frameworks the platform knows how to pre-compile.
const (
	FrameworkArduino = "arduino"
	FrameworkESPIDF  = "espidf"
)

// Model is the unified, format-agnostic representation of the precompile
// manifest: global settings plus the set of bundles to build.
type Model struct {
	Settings *Settings
	Bundles  map[string]*Bundle
}

// Settings holds the manifest-wide build parameters.
type Settings struct {
	// Board is the descriptor name the staging project builds against.
	Board string

	// Jobs is the number of pipeline workers. Defaults to 2.
	Jobs int

	// KeepTemp retains the staging directory after a successful run.
	KeepTemp bool
}

// Bundle describes one static library to produce: a framework build plus a
// fixed set of registry libraries, archived together.
type Bundle struct {
	// Name is the bundle's label in the manifest and the pipeline stage prefix.
	Name string

	// Framework selects the staging project's framework (arduino or espidf).
	Framework string

	// Output is the file name of the produced static archive, e.g.
	// "libespforge_arduino.a".
	Output string

	// BuildFlags are appended to the staging project's build_flags.
	BuildFlags []string

	// ExcludeDirs are build-output subdirectories whose objects never enter
	// the archive. The staging project's own sources ("src") are always
	// excluded.
	ExcludeDirs []string

	// Libraries are the registry libraries compiled into the bundle.
	Libraries []*Library
}

// Library identifies one PlatformIO registry library included in a bundle.
type Library struct {
	// Name is the registry spec in owner/name form, e.g.
	// "adafruit/Adafruit GFX Library".
	Name string

	// Version is the semver requirement, e.g. "^1.11.9".
	Version string

	// Headers is the directory name the library's headers deploy under.
	// Defaults to the library name with spaces replaced by underscores.
	Headers string
}

// Spec renders the library as a platformio.ini lib_deps entry.
func (l *Library) Spec() string {
	if l.Version == "" {
		return l.Name
	}
	return l.Name + "@" + l.Version
}

// BareName returns the library name without its registry owner prefix. The
// libdeps directory PlatformIO creates is named after this.
func (l *Library) BareName() string {
	if idx := strings.IndexByte(l.Name, '/'); idx >= 0 {
		return l.Name[idx+1:]
	}
	return l.Name
}

// HeaderDir returns the deploy directory for the library's headers.
func (l *Library) HeaderDir() string {
	if l.Headers != "" {
		return l.Headers
	}
	return strings.ReplaceAll(l.BareName(), " ", "_")
}

// LibraryOutputName returns the static library file name for a bundle,
// following the libespforge_<framework>.a convention when the manifest does
// not override it.
func LibraryOutputName(framework string) string {
	return fmt.Sprintf("libespforge_%s.a", framework)
}

// Validate checks the invariants the loader cannot express structurally.
func (m *Model) Validate() error {
	if m.Settings == nil {
		return fmt.Errorf("manifest is missing a settings block")
	}
	if m.Settings.Board == "" {
		return fmt.Errorf("settings.board must not be empty")
	}
	if m.Settings.Jobs < 1 {
		return fmt.Errorf("settings.jobs must be at least 1, got %d", m.Settings.Jobs)
	}
	if len(m.Bundles) == 0 {
		return fmt.Errorf("manifest defines no bundles")
	}
	for name, b := range m.Bundles {
		if b.Framework != FrameworkArduino && b.Framework != FrameworkESPIDF {
			return fmt.Errorf("bundle %q: unsupported framework %q", name, b.Framework)
		}
		if b.Output == "" {
			return fmt.Errorf("bundle %q: output must not be empty", name)
		}
		if !strings.HasSuffix(b.Output, ".a") {
			return fmt.Errorf("bundle %q: output %q is not a static archive name", name, b.Output)
		}
		for _, lib := range b.Libraries {
			if lib.Name == "" {
				return fmt.Errorf("bundle %q: library with empty name", name)
			}
		}
	}
	return nil
}
