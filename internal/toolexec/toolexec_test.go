package toolexec

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_String(t *testing.T) {
	cmd := Command{
		Name:   "bet",
		Args:   []string{"/in/T1 w.nii.gz", "out.nii.gz", "-f", "0.3", ""},
		Stdout: "/tmp/stats.txt",
	}
	assert.Equal(t, "bet '/in/T1 w.nii.gz' out.nii.gz -f 0.3 '' > /tmp/stats.txt", cmd.String())
	assert.Equal(t, `echo 'it'\''s'`, Command{Name: "echo", Args: []string{"it's"}}.String())
}

func TestLocal_Run(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	t.Run("writes command log and stdout file", func(t *testing.T) {
		t.Parallel()
		// Arrange
		dir := t.TempDir()
		cmd := Command{
			Name:    "sh",
			Args:    []string{"-c", "echo $CNX_TEST; echo diag 1>&2"},
			Dir:     dir,
			Env:     []string{"CNX_TEST=hello"},
			LogPath: filepath.Join(dir, "command.log"),
			Stdout:  filepath.Join(dir, "out.txt"),
		}

		// Act
		err := NewLocal().Run(context.Background(), cmd)

		// Assert
		require.NoError(t, err)
		out, err := os.ReadFile(cmd.Stdout)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(out))
		log, err := os.ReadFile(cmd.LogPath)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(log), "$ sh -c"))
		assert.Contains(t, string(log), "diag")
	})

	t.Run("non-zero exit is a RunError with output tail", func(t *testing.T) {
		t.Parallel()
		cmd := Command{Name: "sh", Args: []string{"-c", "echo boom 1>&2; exit 3"}, Dir: t.TempDir()}

		err := NewLocal().Run(context.Background(), cmd)

		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, 3, runErr.ExitCode)
		assert.Equal(t, "boom", runErr.Tail)
		assert.Contains(t, err.Error(), "exit code 3")
	})

	t.Run("missing program", func(t *testing.T) {
		t.Parallel()
		err := NewLocal().Run(context.Background(), Command{Name: "cnx-definitely-missing", Dir: t.TempDir()})

		var runErr *RunError
		require.ErrorAs(t, err, &runErr)
		assert.Equal(t, -1, runErr.ExitCode)
	})
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("def"))
	assert.Equal(t, "cdef", string(tb.Bytes()))
}

func TestRecorder(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	rec := NewRecorder(true)
	rec.Fail = map[string]error{"eddy": errors.New("no GPU")}
	out := filepath.Join(dir, "nested", "brain.nii.gz")

	// Act
	errOK := rec.Run(context.Background(), Command{Name: "bet", Outputs: []string{out}})
	errFail := rec.Run(context.Background(), Command{Name: "eddy"})

	// Assert
	require.NoError(t, errOK)
	assert.FileExists(t, out)
	require.Error(t, errFail)
	assert.ErrorContains(t, errFail, "no GPU")
	assert.Equal(t, []string{"bet", "eddy"}, rec.Names())
	assert.Len(t, rec.Commands(), 2)
}

func TestRecorder_Contents(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	rec := NewRecorder(true)
	rec.Contents = map[string]string{"fslstats": "0.42\n"}
	stats := filepath.Join(dir, "stats.txt")
	brain := filepath.Join(dir, "brain.nii.gz")

	// Act
	require.NoError(t, rec.Run(context.Background(), Command{Name: "fslstats", Stdout: stats}))
	require.NoError(t, rec.Run(context.Background(), Command{Name: "bet", Outputs: []string{brain}}))

	// Assert
	got, err := os.ReadFile(stats)
	require.NoError(t, err)
	assert.Equal(t, "0.42\n", string(got))
	got, err = os.ReadFile(brain)
	require.NoError(t, err)
	assert.Equal(t, "produced by bet\n", string(got))
}
