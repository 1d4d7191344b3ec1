package merge

import (
	"context"
	"reflect"

	"github.com/vk/connectome/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the merge runner. Unset inputs are skipped.
type Input struct {
	In1 string `cnx:"in1"`
	In2 string `cnx:"in2"`
	In3 string `cnx:"in3"`
	In4 string `cnx:"in4"`
	In5 string `cnx:"in5"`
	In6 string `cnx:"in6"`
	In7 string `cnx:"in7"`
	In8 string `cnx:"in8"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	Out []string `cty:"out"`
}

// OnRunMerge collects the set inputs in order.
func OnRunMerge(ctx context.Context, env *registry.RunEnv, input *Input) (*Output, error) {
	out := make([]string, 0, 8)
	for _, v := range []string{input.In1, input.In2, input.In3, input.In4, input.In5, input.In6, input.In7, input.In8} {
		if v != "" {
			out = append(out, v)
		}
	}
	return &Output{Out: out}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunMerge", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunMerge,
	})
}
