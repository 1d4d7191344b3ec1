// Package config defines the format-agnostic model of the tool manifests the
// pipelines are built from, along with the core interfaces (Loader,
// Converter) for loading and interpreting them.
//
// The `config.Model` is the single source of truth for the `registry` and
// `engine` packages. Concrete implementations of the interfaces, such as for
// HCL, are provided in separate packages.
package config
