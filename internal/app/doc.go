// Package app contains the core application logic. It wires the tool
// manifests, Go modules, output layout, provenance store and engine into one
// connectome run, decoupled from any specific entrypoint like a CLI.
package app
