package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	got, err := Interpolate(Templates["dwi"], map[string]string{"subject_id": "sub-01"})
	require.NoError(t, err)
	assert.Equal(t, "sub-01/dwi/sub-01_dwi.nii.gz", got)

	_, err = Interpolate("{subject_id}/{session}/x", map[string]string{"subject_id": "sub-01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session")

	got, err = Interpolate("no/placeholders", nil)
	require.NoError(t, err)
	assert.Equal(t, "no/placeholders", got)
}

func TestResolve(t *testing.T) {
	got, err := Resolve("/data", Templates["T1"], "sub-01")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/data/sub-01/anat/sub-01_T1w.nii.gz"), got)
}

func TestArange(t *testing.T) {
	assert.Equal(t, []float64{0, 10}, Arange(0, 20, 10))
	assert.Equal(t, []float64{0, 10, 20}, Arange(0, 25, 10))
	assert.Empty(t, Arange(0, 20, 0))
	assert.Empty(t, Arange(20, 0, 10))
}

func TestLayout_Prepare(t *testing.T) {
	// Arrange
	out := t.TempDir()
	parc := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(parc, "fsaverage", "label"), 0o755))
	l, err := New(out)
	require.NoError(t, err)

	// Act
	require.NoError(t, l.Prepare(parc, "fsaverage"))
	require.NoError(t, l.Prepare(parc, "fsaverage"), "second prepare is a no-op")

	// Assert
	assert.DirExists(t, filepath.Join(out, "connectome"))
	assert.Equal(t, filepath.Join(out, "connectome", "FreeSurfer"), l.SubjectsDir)
	target, err := os.Readlink(filepath.Join(l.SubjectsDir, "fsaverage"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(parc, "fsaverage"), target)
	assert.DirExists(t, filepath.Join(l.SubjectsDir, "fsaverage", "label"))

	assert.Equal(t,
		filepath.Join(out, "connectome", "_subject_id_sub-01", "t1_preproc", "bet"),
		l.InstanceDir("connectome/_subject_id_sub-01/t1_preproc/bet"))
}

func TestLayout_PrepareMissingSourceSubject(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)

	err = l.Prepare(t.TempDir(), "fsaverage")
	assert.ErrorContains(t, err, `source subject "fsaverage" not found`)
}

func TestNew_RejectsEmptyOutput(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
