// Package pipeline holds the shared run state the stages communicate
// through, plus the options that parameterize a precompile run. It sits
// below the stage packages so each stage only depends on what it reads.
package pipeline

import (
	"sync"

	"github.com/espforge/espforge/internal/execx"
)

// Options parameterizes one precompile run.
type Options struct {
	// PlatformDir is the platform checkout the staging projects build
	// against and the prebuilt artifacts deploy into.
	PlatformDir string

	// StagingRoot is the directory staging projects are scaffolded under,
	// one subdirectory per bundle.
	StagingRoot string

	// PackagesDir is the PlatformIO packages directory where toolchains and
	// framework packages are installed.
	PackagesDir string

	// Runner executes external commands. Tests inject a fake.
	Runner execx.Runner

	// KeepTemp retains the staging directories after a successful run.
	KeepTemp bool
}

// bundleResult is what the collect stage hands to the stages downstream.
type bundleResult struct {
	objects    []string
	hasAppMain bool
}

// State carries per-bundle results between stages. Stages for different
// bundles run concurrently, so access is synchronized.
type State struct {
	mu      sync.Mutex
	results map[string]*bundleResult
}

// NewState creates an empty run state.
func NewState() *State {
	return &State{results: make(map[string]*bundleResult)}
}

// SetObjects records the collected object files for a bundle.
func (s *State) SetObjects(bundle string, objects []string, hasAppMain bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[bundle] = &bundleResult{objects: objects, hasAppMain: hasAppMain}
}

// Objects returns the collected object files for a bundle, and whether the
// collect stage has run for it.
func (s *State) Objects(bundle string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[bundle]
	if !ok {
		return nil, false
	}
	return r.objects, true
}

// ObjectCount returns how many objects a bundle's archive contains.
func (s *State) ObjectCount(bundle string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.results[bundle]; ok {
		return len(r.objects)
	}
	return 0
}
