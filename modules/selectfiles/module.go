package selectfiles

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/vk/connectome/internal/fsutil"
	"github.com/vk/connectome/internal/layout"
	"github.com/vk/connectome/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the selectfiles runner.
type Input struct {
	BaseDirectory string            `cnx:"base_directory"`
	SubjectID     string            `cnx:"subject_id"`
	Templates     map[string]string `cnx:"templates"`
	RaiseOnEmpty  bool              `cnx:"raise_on_empty"`
}

// OnRunSelectFiles resolves every template for one subject. The result is a
// map from template name to absolute path.
func OnRunSelectFiles(ctx context.Context, env *registry.RunEnv, input *Input) (map[string]string, error) {
	templates := input.Templates
	if len(templates) == 0 {
		templates = layout.Templates
	}

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make(map[string]string, len(templates))
	for _, name := range names {
		path, err := layout.Resolve(input.BaseDirectory, templates[name], input.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("template '%s': %w", name, err)
		}
		if input.RaiseOnEmpty && !env.DryRun && !fsutil.Exists(path) {
			return nil, fmt.Errorf("no file matches template '%s' for subject '%s': %s does not exist", name, input.SubjectID, path)
		}
		env.Logger.Debug("Selected file.", "template", name, "path", path)
		files[name] = path
	}
	return files, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunSelectFiles", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunSelectFiles,
	})
}
