package rename

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

func TestNewName(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name      string
		inFile    string
		format    string
		subjectID string
		keepExt   bool
		want      string
		wantErr   string
	}{
		{name: "keeps double extension", inFile: "/w/dtifit_L1.nii.gz", format: "{subject_id}_AD", subjectID: "sub-01", keepExt: true, want: "sub-01_AD.nii.gz"},
		{name: "drops extension", inFile: "/w/mask.nii", format: "{subject_id}_mask", subjectID: "sub-01", want: "sub-01_mask"},
		{name: "plain format", inFile: "/w/b0.mgz", format: "b0", keepExt: true, want: "b0.mgz"},
		{name: "missing subject", inFile: "/w/b0.nii.gz", format: "{subject_id}_b0", wantErr: "unknown field"},
		{name: "path separators", inFile: "/w/b0.nii.gz", format: "../b0", wantErr: "plain file name"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewName(tc.inFile, tc.format, tc.subjectID, tc.keepExt)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOnRunRename_CopiesIntoWorkDir(t *testing.T) {
	t.Parallel()
	// Arrange
	src := filepath.Join(t.TempDir(), "dtifit_L1.nii.gz")
	require.NoError(t, os.WriteFile(src, []byte("volume"), 0o644))
	work := filepath.Join(t.TempDir(), "AD_rename")
	env := &registry.RunEnv{WorkDir: work, Logger: slog.Default()}

	// Act
	out, err := OnRunRename(context.Background(), env, &Input{
		InFile:       src,
		FormatString: "{subject_id}_AD",
		SubjectID:    "sub-01",
		KeepExt:      true,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "sub-01_AD.nii.gz"), out.OutFile)
	data, err := os.ReadFile(out.OutFile)
	require.NoError(t, err)
	assert.Equal(t, "volume", string(data))
	assert.FileExists(t, src, "the source is copied, not moved")
}

func TestOnRunRename_DryRun(t *testing.T) {
	t.Parallel()
	work := filepath.Join(t.TempDir(), "rename")
	env := &registry.RunEnv{WorkDir: work, DryRun: true, Logger: slog.Default()}

	out, err := OnRunRename(context.Background(), env, &Input{InFile: "/missing/b0.nii.gz", FormatString: "b0", KeepExt: true})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "b0.nii.gz"), out.OutFile)
	assert.NoDirExists(t, work)
}
