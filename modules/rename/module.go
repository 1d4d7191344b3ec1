package rename

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/vk/connectome/internal/fsutil"
	"github.com/vk/connectome/internal/hcl"
	"github.com/vk/connectome/internal/layout"
	"github.com/vk/connectome/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the rename runner.
type Input struct {
	InFile       string `cnx:"in_file"`
	FormatString string `cnx:"format_string"`
	SubjectID    string `cnx:"subject_id"`
	KeepExt      bool   `cnx:"keep_ext"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	OutFile string `cty:"out_file"`
}

// NewName builds the target file name. With keepExt the extension of inFile,
// including double extensions such as .nii.gz, is appended.
func NewName(inFile, format, subjectID string, keepExt bool) (string, error) {
	fields := map[string]string{}
	if subjectID != "" {
		fields["subject_id"] = subjectID
	}
	name, err := layout.Interpolate(format, fields)
	if err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("format string %q must produce a plain file name, got %q", format, name)
	}
	if keepExt {
		_, ext := hcl.SplitExt(inFile)
		name += ext
	}
	return name, nil
}

// OnRunRename copies in_file into the node directory under its new name.
func OnRunRename(ctx context.Context, env *registry.RunEnv, input *Input) (*Output, error) {
	name, err := NewName(input.InFile, input.FormatString, input.SubjectID, input.KeepExt)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(env.WorkDir, name)

	if !env.DryRun {
		if err := fsutil.CopyFile(input.InFile, out); err != nil {
			return nil, fmt.Errorf("failed to rename %s: %w", input.InFile, err)
		}
	}
	env.Logger.Debug("Renamed file.", "from", input.InFile, "to", out)
	return &Output{OutFile: out}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunRename", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunRename,
	})
}
