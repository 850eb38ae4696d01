package board

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Platform is the top-level platform descriptor (platform.json).
type Platform struct {
	Name        string               `json:"name"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Version     string               `json:"version"`
	Homepage    string               `json:"homepage,omitempty"`
	License     string               `json:"license,omitempty"`
	Frameworks  map[string]Framework `json:"frameworks"`
	Packages    map[string]Package   `json:"packages"`
}

// Framework declares one framework the platform can build.
type Framework struct {
	Script string `json:"script,omitempty"`
}

// Package declares one toolchain or framework package the platform pins.
type Package struct {
	Type     string `json:"type"`
	Owner    string `json:"owner,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Version  string `json:"version"`
}

// LoadPlatform reads the platform descriptor from path.
func LoadPlatform(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform descriptor %s: %w", path, err)
	}
	var p Platform
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode platform descriptor %s: %w", path, err)
	}
	return &p, nil
}

// FrameworkNames returns the platform's framework names, sorted.
func (p *Platform) FrameworkNames() []string {
	names := make([]string, 0, len(p.Frameworks))
	for name := range p.Frameworks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PackageNames returns the platform's package names, sorted.
func (p *Platform) PackageNames() []string {
	names := make([]string, 0, len(p.Packages))
	for name := range p.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the platform descriptor's invariants.
func (p *Platform) Validate() []error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, fmt.Errorf("platform: name must not be empty"))
	}
	if p.Version == "" {
		errs = append(errs, fmt.Errorf("platform: version must not be empty"))
	}
	if len(p.Frameworks) == 0 {
		errs = append(errs, fmt.Errorf("platform: frameworks must not be empty"))
	}
	for name, pkg := range p.Packages {
		if pkg.Version == "" {
			errs = append(errs, fmt.Errorf("platform: package %q has no version requirement", name))
		}
	}
	return errs
}
