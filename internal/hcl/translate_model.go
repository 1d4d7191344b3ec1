// This file contains the logic for translating HCL manifest blocks into the
// format-agnostic configuration model defined in the config package.

package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/connectome/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// isAbsent reports whether an optional attribute was left out of a block.
// gohcl fills missing hcl.Expression fields with a static null expression.
func isAbsent(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}
	val, diags := expr.Value(nil)
	return !diags.HasErrors() && val.IsNull()
}

// optionalExpr returns nil for absent expressions so the model can use nil
// checks instead of evaluating placeholders.
func optionalExpr(expr hcl.Expression) hcl.Expression {
	if isAbsent(expr) {
		return nil
	}
	return expr
}

// translateInputDefinition is a helper that processes a single HCL input
// block, handling its default value and type parsing.
func translateInputDefinition(ctx context.Context, in *inputBlock, toolType string) (*config.InputDefinition, error) {
	parsedType, err := typeExprToCtyType(ctx, in.Type)
	if err != nil {
		return nil, fmt.Errorf("in runner '%s', input '%s': %w", toolType, in.Name, err)
	}

	var defaultVal *cty.Value
	isOptional := in.Optional

	if !isAbsent(in.Default) {
		val, diags := in.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default value for input '%s' in runner '%s': %w", in.Name, toolType, diags)
		}
		if !val.IsNull() {
			defaultVal = &val
			isOptional = true
		}
	}

	return &config.InputDefinition{
		Name:        in.Name,
		Type:        parsedType,
		Description: in.Description,
		Default:     defaultVal,
		Optional:    isOptional,
	}, nil
}

// translateToolDefinition converts the HCL-specific runner block into the agnostic model.
func (l *Loader) translateToolDefinition(ctx context.Context, r *runnerBlock) (*config.ToolDefinition, error) {
	def := &config.ToolDefinition{
		Type:        r.Type,
		Description: r.Description,
		Command:     optionalExpr(r.Command),
		Env:         optionalExpr(r.Env),
		Stdout:      optionalExpr(r.Stdout),
		Passthrough: r.Passthrough,
		Inputs:      make(map[string]*config.InputDefinition),
		Outputs:     make(map[string]*config.OutputDefinition),
	}
	if r.Lifecycle != nil && r.Lifecycle.OnRun != "" {
		def.Lifecycle = &config.Lifecycle{OnRun: r.Lifecycle.OnRun}
	}

	modes := 0
	for _, set := range []bool{def.Command != nil, def.Lifecycle != nil, def.Passthrough} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return nil, fmt.Errorf("runner '%s' must declare exactly one of 'command', 'lifecycle' or 'passthrough'", r.Type)
	}

	for _, in := range r.Inputs {
		if _, dup := def.Inputs[in.Name]; dup {
			return nil, fmt.Errorf("runner '%s' declares input '%s' twice", r.Type, in.Name)
		}
		translated, err := translateInputDefinition(ctx, in, r.Type)
		if err != nil {
			return nil, err
		}
		def.Inputs[in.Name] = translated
	}

	for _, out := range r.Outputs {
		if _, dup := def.Outputs[out.Name]; dup {
			return nil, fmt.Errorf("runner '%s' declares output '%s' twice", r.Type, out.Name)
		}
		parsedType, err := typeExprToCtyType(ctx, out.Type)
		if err != nil {
			return nil, fmt.Errorf("in runner '%s', output '%s': %w", r.Type, out.Name, err)
		}
		value := optionalExpr(out.Value)
		if value == nil && def.Command != nil {
			return nil, fmt.Errorf("in runner '%s', output '%s': command runners must give every output a 'value'", r.Type, out.Name)
		}
		def.Outputs[out.Name] = &config.OutputDefinition{
			Name:        out.Name,
			Type:        parsedType,
			Description: out.Description,
			Value:       value,
			Exists:      optionalExpr(out.Exists),
		}
	}
	return def, nil
}
