package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/connectome/internal/ctxlog"
	"github.com/vk/connectome/internal/hcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ValidateRegistry performs a strict parity check between manifests and Go code.
// It checks that lifecycle handlers exist, and both the presence of inputs and
// the compatibility of their types.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	names := make([]string, 0, len(r.Definitions))
	for name := range r.Definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, toolType := range names {
		def := r.Definitions[toolType]
		if def.Lifecycle == nil {
			continue
		}

		handler, ok := r.Handlers[def.Lifecycle.OnRun]
		if !ok {
			errs = append(errs, fmt.Sprintf("tool '%s': lifecycle handler '%s' is not registered", toolType, def.Lifecycle.OnRun))
			continue
		}

		if handler.InputType == nil {
			if len(def.Inputs) > 0 {
				errs = append(errs, fmt.Sprintf("tool '%s': manifest declares inputs, but Go handler has no input struct", toolType))
			}
			continue
		}

		goInputs := make(map[string]reflect.StructField)
		inputType := handler.InputType
		for i := 0; i < inputType.NumField(); i++ {
			field := inputType.Field(i)
			if !field.IsExported() {
				continue
			}
			if tagName := hcl.FieldName(field); tagName != "" {
				goInputs[tagName] = field
			}
		}

		for name := range goInputs {
			if _, ok := def.Inputs[name]; !ok {
				errs = append(errs, fmt.Sprintf("tool '%s': Go struct has field for input '%s' which is not declared in manifest", toolType, name))
			}
		}
		for name := range def.Inputs {
			if _, ok := goInputs[name]; !ok {
				errs = append(errs, fmt.Sprintf("tool '%s': manifest declares input '%s' which is not found in Go struct", toolType, name))
			}
		}

		for name, inputDef := range def.Inputs {
			goField, ok := goInputs[name]
			if !ok {
				continue
			}

			manifestType := inputDef.Type
			if manifestType.Equals(cty.DynamicPseudoType) {
				logger.Debug("Input declared as 'any', skipping static type check.", "tool", toolType, "input", name)
				continue
			}

			goFieldType, err := gocty.ImpliedType(reflect.Zero(goField.Type).Interface())
			if err != nil {
				errs = append(errs, fmt.Sprintf("tool '%s', input '%s': could not imply cty type from Go field type %s: %v", toolType, name, goField.Type, err))
				continue
			}

			if !manifestType.Equals(goFieldType) {
				errs = append(errs, fmt.Sprintf("tool '%s', input '%s': type mismatch. Manifest requires '%s' but Go struct field '%s' provides '%s'",
					toolType, name, manifestType.FriendlyName(), goField.Name, goFieldType.FriendlyName()))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}
