// Package schema holds the HCL-facing struct definitions for the precompile
// manifest. These structs are decoded directly by gohcl and then translated
// into the format-agnostic model in the config package.
package schema

import "github.com/hashicorp/hcl/v2"

// Settings represents the `settings` block of a manifest file.
type Settings struct {
	Board    string `hcl:"board"`
	Jobs     *int   `hcl:"jobs,optional"`
	KeepTemp bool   `hcl:"keep_temp,optional"`
}

// Library represents a `library` block inside a bundle. The label is the
// registry spec in owner/name form; the version requirement and the deployed
// header directory are attributes.
type Library struct {
	Name    string `hcl:"name,label"`
	Version string `hcl:"version,optional"`
	Headers string `hcl:"headers,optional"`
}

// Bundle represents a `bundle` block: one static library to produce.
// BuildFlags stays an expression so the loader can evaluate and convert it
// through cty, giving manifest authors list syntax with proper diagnostics.
type Bundle struct {
	Name        string         `hcl:"name,label"`
	Framework   string         `hcl:"framework"`
	Output      string         `hcl:"output,optional"`
	BuildFlags  hcl.Expression `hcl:"build_flags,optional"`
	ExcludeDirs []string       `hcl:"exclude_dirs,optional"`
	Libraries   []*Library     `hcl:"library,block"`
}

// Manifest represents the top-level structure of a manifest file. A manifest
// may be split across several files in a directory; blocks are merged by the
// loader.
type Manifest struct {
	Settings *Settings `hcl:"settings,block"`
	Bundles  []*Bundle `hcl:"bundle,block"`
	Body     hcl.Body  `hcl:",remain"`
}
