package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/connectome/internal/config"
	"github.com/vk/connectome/internal/workflow"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// resolveInputs merges static inputs, iterable values and upstream outputs,
// then applies the tool's defaults and types.
func (e *Engine) resolveInputs(ctx context.Context, inst *workflow.Instance, def *config.ToolDefinition) (map[string]cty.Value, error) {
	values := make(map[string]cty.Value, len(inst.Inputs)+len(inst.Links))
	for k, v := range inst.Inputs {
		values[k] = v
	}

	joined := make(map[string][]cty.Value)
	for _, l := range inst.Links {
		out, ok, err := e.store.GetOutputs(ctx, l.SrcID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("upstream '%s' has no outputs", l.SrcID)
		}
		v, err := outputAttr(out, l.SrcOutput)
		if err != nil {
			return nil, fmt.Errorf("upstream '%s': %w", l.SrcID, err)
		}
		if l.JoinIndex < 0 {
			values[l.DstInput] = v
			continue
		}
		list := joined[l.DstInput]
		for len(list) <= l.JoinIndex {
			list = append(list, cty.NullVal(cty.DynamicPseudoType))
		}
		list[l.JoinIndex] = v
		joined[l.DstInput] = list
	}
	for name, list := range joined {
		values[name] = cty.TupleVal(list)
	}

	if def.Passthrough && len(def.Inputs) == 0 {
		return values, nil
	}

	if !def.Passthrough {
		var unknown []string
		for name := range values {
			if _, ok := def.Inputs[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, fmt.Errorf("tool '%s' has no input(s) %v", def.Type, unknown)
		}
	}

	mapped := make(map[string]bool, len(inst.MapFields))
	for _, f := range inst.MapFields {
		mapped[f] = true
	}

	for name, in := range def.Inputs {
		v, ok := values[name]
		if !ok || v.IsNull() {
			switch {
			case in.Default != nil:
				values[name] = *in.Default
			case in.Optional:
				values[name] = cty.NullVal(in.Type)
			default:
				return nil, fmt.Errorf("missing required input %q", name)
			}
			continue
		}
		if mapped[name] {
			continue
		}
		converted, err := convertInput(name, v, in)
		if err != nil {
			return nil, err
		}
		values[name] = converted
	}
	return values, nil
}

func convertInput(name string, v cty.Value, in *config.InputDefinition) (cty.Value, error) {
	if in == nil || in.Type.Equals(cty.DynamicPseudoType) {
		return v, nil
	}
	converted, err := convert.Convert(v, in.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("input %q: cannot use %s as %s: %w", name, v.Type().FriendlyName(), in.Type.FriendlyName(), err)
	}
	return converted, nil
}

// outputAttr reads one named output from an object or map value.
func outputAttr(out cty.Value, name string) (cty.Value, error) {
	ty := out.Type()
	switch {
	case out.IsNull():
		return cty.NilVal, fmt.Errorf("no outputs recorded")
	case ty.IsObjectType():
		if !ty.HasAttribute(name) {
			return cty.NilVal, fmt.Errorf("output '%s' not produced", name)
		}
		return out.GetAttr(name), nil
	case ty.IsMapType():
		key := cty.StringVal(name)
		if !out.HasIndex(key).True() {
			return cty.NilVal, fmt.Errorf("output '%s' not produced", name)
		}
		return out.Index(key), nil
	default:
		return cty.NilVal, fmt.Errorf("outputs are a %s, not an object", ty.FriendlyName())
	}
}

func objectOf(values map[string]cty.Value) cty.Value {
	if len(values) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(values)
}
