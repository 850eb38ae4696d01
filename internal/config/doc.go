// Package config defines the format-agnostic model of the precompile
// manifest, along with the Loader interface for reading it from a concrete
// source. The `config.Model` is the single source of truth for the
// `pipeline` and `dag` packages. The concrete HCL implementation of the
// Loader lives in the `hcl` package.
package config
