package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads every manifest reachable from the given paths, on top of any
	// built-in manifests the loader carries, translates them into the
	// format-agnostic model, and returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter is the interface for a format-specific data binding and type
// conversion implementation. It acts as the bridge between the values flowing
// through a workflow and the Go types used by modules.
type Converter interface {
	// DecodeValues populates a target Go struct from resolved input values,
	// applying manifest defaults and required-input checks.
	DecodeValues(
		ctx context.Context,
		target any,
		values map[string]cty.Value,
		defs map[string]*InputDefinition,
	) error

	// ToCtyValue converts a native Go value (like a handler's output struct)
	// into its equivalent cty.Value for the engine's internal use.
	ToCtyValue(v any) (cty.Value, error)

	// Evaluate evaluates a manifest expression against the given variables
	// (`input`, `output`, `node`) with the manifest function library.
	Evaluate(expr hcl.Expression, vars map[string]cty.Value) (cty.Value, error)
}
