package selectfiles

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/connectome/internal/registry"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestOnRunSelectFiles_DefaultTemplates(t *testing.T) {
	t.Parallel()
	// Arrange
	base := t.TempDir()
	for _, rel := range []string{
		"sub-01/anat/sub-01_T1w.nii.gz",
		"sub-01/dwi/sub-01_dwi.nii.gz",
		"sub-01/dwi/sub-01_dwi.bvec",
		"sub-01/dwi/sub-01_dwi.bval",
	} {
		touch(t, filepath.Join(base, rel))
	}
	env := &registry.RunEnv{Logger: slog.Default()}

	// Act
	files, err := OnRunSelectFiles(context.Background(), env, &Input{
		BaseDirectory: base,
		SubjectID:     "sub-01",
		RaiseOnEmpty:  true,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"T1":   filepath.Join(base, "sub-01/anat/sub-01_T1w.nii.gz"),
		"dwi":  filepath.Join(base, "sub-01/dwi/sub-01_dwi.nii.gz"),
		"bvec": filepath.Join(base, "sub-01/dwi/sub-01_dwi.bvec"),
		"bval": filepath.Join(base, "sub-01/dwi/sub-01_dwi.bval"),
	}, files)
}

func TestOnRunSelectFiles_MissingFile(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	input := &Input{
		BaseDirectory: base,
		SubjectID:     "sub-02",
		Templates:     map[string]string{"T1": "{subject_id}/anat/{subject_id}_T1w.nii.gz"},
		RaiseOnEmpty:  true,
	}

	_, err := OnRunSelectFiles(context.Background(), &registry.RunEnv{Logger: slog.Default()}, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file matches template 'T1' for subject 'sub-02'")

	// Dry runs and raise_on_empty=false resolve paths without checking.
	files, err := OnRunSelectFiles(context.Background(), &registry.RunEnv{Logger: slog.Default(), DryRun: true}, input)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "sub-02/anat/sub-02_T1w.nii.gz"), files["T1"])

	input.RaiseOnEmpty = false
	_, err = OnRunSelectFiles(context.Background(), &registry.RunEnv{Logger: slog.Default()}, input)
	assert.NoError(t, err)
}

func TestOnRunSelectFiles_UnknownPlaceholder(t *testing.T) {
	t.Parallel()
	_, err := OnRunSelectFiles(context.Background(), &registry.RunEnv{Logger: slog.Default()}, &Input{
		BaseDirectory: "/data",
		SubjectID:     "sub-01",
		Templates:     map[string]string{"T2": "{subject_id}/anat/{session}_T2w.nii.gz"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template 'T2'")
}
