package fsrename

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/vk/connectome/internal/fsutil"
	"github.com/vk/connectome/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the fsrename runner.
type Input struct {
	SubjectID   string `cnx:"subject_id"`
	SubjectsDir string `cnx:"subjects_dir"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	SubjectID   string `cty:"subject_id"`
	SubjectsDir string `cty:"subjects_dir"`
	Brainmask   string `cty:"brainmask"`
}

// maskNames are the volumes autorecon2 expects after skull stripping.
var maskNames = []string{"brainmask.auto.mgz", "brainmask.mgz"}

// OnRunFSRename installs mri/T1.mgz, which autorecon1 -noskullstrip built
// from an already skull-stripped image, as FreeSurfer's brain mask so that
// autorecon2 can continue without FreeSurfer's own skull stripping.
func OnRunFSRename(ctx context.Context, env *registry.RunEnv, input *Input) (*Output, error) {
	subjectsDir := input.SubjectsDir
	if subjectsDir == "" {
		subjectsDir = env.SubjectsDir
	}
	mri := filepath.Join(subjectsDir, input.SubjectID, "mri")
	src := filepath.Join(mri, "T1.mgz")

	out := &Output{
		SubjectID:   input.SubjectID,
		SubjectsDir: subjectsDir,
		Brainmask:   filepath.Join(mri, "brainmask.mgz"),
	}
	if env.DryRun {
		return out, nil
	}
	if !fsutil.Exists(src) {
		return nil, fmt.Errorf("subject '%s' has no %s; did autorecon1 run?", input.SubjectID, src)
	}
	for _, name := range maskNames {
		if err := fsutil.CopyFile(src, filepath.Join(mri, name)); err != nil {
			return nil, err
		}
	}
	env.Logger.Debug("Installed skull-stripped T1 as brain mask.", "subject", input.SubjectID)
	return out, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunFSRename", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunFSRename,
	})
}
