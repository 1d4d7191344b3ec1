// Package layout knows where pipeline inputs live and where outputs go: the
// BIDS-like input templates, the output tree under `<out>/connectome`, and
// FreeSurfer's SUBJECTS_DIR.
package layout

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
)

// Templates maps the SelectFiles output names to paths relative to the base
// directory.
var Templates = map[string]string{
	"T1":   "{subject_id}/anat/{subject_id}_T1w.nii.gz",
	"dwi":  "{subject_id}/dwi/{subject_id}_dwi.nii.gz",
	"bvec": "{subject_id}/dwi/{subject_id}_dwi.bvec",
	"bval": "{subject_id}/dwi/{subject_id}_dwi.bval",
}

const (
	// WorkflowName names the top-level workflow and its directory.
	WorkflowName = "connectome"
	// FreeSurferDirName is the SUBJECTS_DIR inside the workflow directory.
	FreeSurferDirName = "FreeSurfer"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Interpolate replaces every `{name}` in tmpl with fields[name]. A
// placeholder without a field is an error.
func Interpolate(tmpl string, fields map[string]string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := fields[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q references unknown field(s) %v", tmpl, missing)
	}
	return out, nil
}

// Resolve returns the absolute path of a subject's file described by tmpl.
func Resolve(base, tmpl, subject string) (string, error) {
	rel, err := Interpolate(tmpl, map[string]string{"subject_id": subject})
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(base, rel))
}

// Arange returns start, start+step, ... up to but excluding stop.
func Arange(start, stop, step float64) []float64 {
	if step <= 0 || stop <= start {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return values
}

// Layout is the output tree of a run.
type Layout struct {
	// Out is the user supplied output root.
	Out string
	// BaseDir is `<out>/connectome`, the workflow base directory.
	BaseDir string
	// SubjectsDir is FreeSurfer's SUBJECTS_DIR.
	SubjectsDir string
}

// New derives the layout from the output root.
func New(out string) (*Layout, error) {
	if out == "" {
		return nil, errors.New("output directory must not be empty")
	}
	abs, err := filepath.Abs(out)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	base := filepath.Join(abs, WorkflowName)
	return &Layout{
		Out:         abs,
		BaseDir:     base,
		SubjectsDir: filepath.Join(base, FreeSurferDirName),
	}, nil
}

// InstanceDir returns the working directory of an expanded workflow instance.
// Instance IDs start with the workflow name, which is the last element of
// BaseDir.
func (l *Layout) InstanceDir(id string) string {
	return filepath.Join(l.Out, filepath.FromSlash(id))
}

// Prepare creates the workflow and FreeSurfer directories. Existing content
// is left untouched. When parcellationDir is set, the source subject found
// there is linked into SUBJECTS_DIR unless an entry with that name exists.
func (l *Layout) Prepare(parcellationDir, sourceSubject string) error {
	for _, dir := range []string{l.BaseDir, l.SubjectsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if parcellationDir == "" || sourceSubject == "" {
		return nil
	}

	target, err := filepath.Abs(filepath.Join(parcellationDir, sourceSubject))
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("source subject %q not found in parcellation directory: %w", sourceSubject, err)
	}

	link := filepath.Join(l.SubjectsDir, sourceSubject)
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to link %s into SUBJECTS_DIR: %w", sourceSubject, err)
	}
	return nil
}
