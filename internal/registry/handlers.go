package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// RunEnv describes where and how a Go handler runs for one node instance.
type RunEnv struct {
	// NodeID is the expanded instance ID, e.g. "connectome/_subject_id_sub-01/rename".
	NodeID string
	// WorkDir is the absolute working directory of the instance.
	WorkDir string
	// SubjectsDir is the FreeSurfer SUBJECTS_DIR of the run.
	SubjectsDir string
	// DryRun handlers must compute their outputs without touching the filesystem.
	DryRun bool
	Logger *slog.Logger
}

// RegisteredRunner holds the compiled Go parts of a runner's lifecycle function.
//
// Fn must have the shape
//
//	func(ctx context.Context, env *registry.RunEnv, input *In) (*Out, error)
//
// where In is the type returned by NewInput.
type RegisteredRunner struct {
	NewInput  func() any
	InputType reflect.Type
	Fn        any
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	runEnvType  = reflect.TypeOf((*RunEnv)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// RegisterRunner registers a Go function for a runner's lifecycle event.
func (r *Registry) RegisterRunner(name string, handler *RegisteredRunner) {
	if _, exists := r.Handlers[name]; exists {
		panic(fmt.Sprintf("runner handler with name '%s' already registered", name))
	}
	if err := checkHandlerShape(handler); err != nil {
		panic(fmt.Sprintf("runner handler '%s': %v", name, err))
	}
	slog.Debug("Registering runner handler.", "name", name)
	r.Handlers[name] = handler
}

func checkHandlerShape(h *RegisteredRunner) error {
	fn := reflect.TypeOf(h.Fn)
	if fn == nil || fn.Kind() != reflect.Func {
		return fmt.Errorf("Fn must be a function, got %T", h.Fn)
	}
	if fn.NumIn() != 3 || fn.In(0) != contextType || fn.In(1) != runEnvType {
		return fmt.Errorf("Fn must accept (context.Context, *registry.RunEnv, *Input)")
	}
	if fn.NumOut() != 2 || fn.Out(1) != errorType {
		return fmt.Errorf("Fn must return (*Output, error)")
	}
	if h.NewInput != nil {
		in := reflect.TypeOf(h.NewInput())
		if in != fn.In(2) {
			return fmt.Errorf("NewInput returns %s but Fn accepts %s", in, fn.In(2))
		}
	}
	return nil
}

// Call invokes the handler with a decoded input value. The input must be the
// pointer produced by NewInput.
func (h *RegisteredRunner) Call(ctx context.Context, env *RunEnv, input any) (any, error) {
	results := reflect.ValueOf(h.Fn).Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(env),
		reflect.ValueOf(input),
	})
	if errVal := results[1].Interface(); errVal != nil {
		return nil, errVal.(error)
	}
	return results[0].Interface(), nil
}
