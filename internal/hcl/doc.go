// Package hcl provides the concrete HCL implementation of the manifest
// loading interface defined in the `config` package. It is responsible for
// file discovery, parsing, HCL-to-model translation, and CTY-to-Go value
// conversion.
package hcl
