package split

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/connectome/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the split runner.
type Input struct {
	InList []string `cnx:"inlist"`
}

// Output publishes the list elements by position. Outputs past the end of
// the list are empty.
type Output struct {
	Out1 string `cty:"out1"`
	Out2 string `cty:"out2"`
	Out3 string `cty:"out3"`
	Out4 string `cty:"out4"`
	Out5 string `cty:"out5"`
	Out6 string `cty:"out6"`
	Out7 string `cty:"out7"`
	Out8 string `cty:"out8"`
}

// OnRunSplit is the inverse of merge: it hands every element of a list to its
// own output so that downstream nodes can be connected to one of them.
func OnRunSplit(ctx context.Context, env *registry.RunEnv, input *Input) (*Output, error) {
	out := &Output{}
	slots := []*string{&out.Out1, &out.Out2, &out.Out3, &out.Out4, &out.Out5, &out.Out6, &out.Out7, &out.Out8}
	if len(input.InList) > len(slots) {
		return nil, fmt.Errorf("cannot split %d values into %d outputs", len(input.InList), len(slots))
	}
	for i, v := range input.InList {
		*slots[i] = v
	}
	return out, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunSplit", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunSplit,
	})
}
