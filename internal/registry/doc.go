// Package registry provides the central "glue" between tool manifests and
// the Go modules that implement some of those tools.
//
// The Registry stores the mapping between the handler names used in
// manifests (e.g. "OnRunRename") and the compiled Go functions and input
// types that implement them. It also holds the parsed, format-agnostic tool
// definitions loaded from the manifests.
//
// During application startup the registry is populated and then validated so
// that a manifest and its Go handler cannot drift apart silently.
package registry
