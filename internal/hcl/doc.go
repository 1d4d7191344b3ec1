// Package hcl provides the concrete HCL implementation for the configuration
// loading and data conversion interfaces defined in the `config` package.
// It is responsible for manifest parsing, HCL-to-model translation,
// expression evaluation with the manifest function library, and CTY-to-Go
// data binding.
package hcl
