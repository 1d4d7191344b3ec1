package datasink

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/vk/connectome/internal/fsutil"
	"github.com/vk/connectome/internal/layout"
	"github.com/vk/connectome/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the datasink runner.
type Input struct {
	BaseDirectory string   `cnx:"base_directory"`
	Container     string   `cnx:"container"`
	SubjectID     string   `cnx:"subject_id"`
	InFiles       []string `cnx:"in_files"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	OutFiles []string `cty:"out_files"`
}

// OnRunDataSink copies every input file into base_directory/container,
// keeping file names. Two inputs with the same name are an error.
func OnRunDataSink(ctx context.Context, env *registry.RunEnv, input *Input) (*Output, error) {
	fields := map[string]string{}
	if input.SubjectID != "" {
		fields["subject_id"] = input.SubjectID
	}
	container, err := layout.Interpolate(input.Container, fields)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(input.BaseDirectory, container)

	seen := make(map[string]string, len(input.InFiles))
	out := make([]string, 0, len(input.InFiles))
	for _, src := range input.InFiles {
		name := filepath.Base(src)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("both %s and %s would be stored as %s", prev, src, name)
		}
		seen[name] = src

		dst := filepath.Join(dir, name)
		if !env.DryRun {
			if err := fsutil.CopyFile(src, dst); err != nil {
				return nil, fmt.Errorf("failed to sink %s: %w", src, err)
			}
		}
		out = append(out, dst)
	}
	env.Logger.Info("📦 Stored results.", "directory", dir, "files", len(out))
	return &Output{OutFiles: out}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunDataSink", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunDataSink,
	})
}
