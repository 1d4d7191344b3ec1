package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/connectome/internal/app"
)

func TestSplitSubjects(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b"}, SplitSubjects("a,,b,"))
	assert.Equal(t, []string{"sub-01", "sub-02"}, SplitSubjects(" sub-01 , sub-02"))
	assert.Nil(t, SplitSubjects(""))
	assert.Nil(t, SplitSubjects(",,"))
}

func TestParse_LongAndShortFlags(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	base := t.TempDir()
	out := t.TempDir()
	testCases := []struct {
		name string
		args []string
	}{
		{
			name: "long",
			args: []string{"--base_directory", base, "--subject_list", "sub-01,,sub-02,", "--out_directory", out, "--acquisition_parameters", "acqp.txt", "--index_file", "index.txt"},
		},
		{
			name: "short",
			args: []string{"-b", base, "-s", "sub-01,,sub-02,", "-o", out, "-a", "acqp.txt", "-i", "index.txt"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Act ---
			cfg, shouldExit, err := Parse(tc.args, &bytes.Buffer{})

			// --- Assert ---
			require.NoError(t, err)
			assert.False(t, shouldExit)
			assert.Equal(t, base, cfg.BaseDirectory)
			assert.Equal(t, []string{"sub-01", "sub-02"}, cfg.Subjects)
			assert.Equal(t, out, cfg.OutDirectory)
			assert.Equal(t, "acqp.txt", cfg.AcquisitionParameters)
			assert.Equal(t, "index.txt", cfg.IndexFile)
			assert.Equal(t, 4, cfg.Workers)
			assert.Equal(t, app.CacheSQLite, cfg.Cache)
			assert.False(t, cfg.DryRun)
		})
	}
}

func TestParse_AmbientFlags(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	base := t.TempDir()
	args := []string{
		"-b", base, "-s", "sub-01", "-o", t.TempDir(),
		"--log-format", "JSON", "--log-level", "debug", "--workers", "8",
		"--healthcheck-port", "8080", "--dry-run", "--fail-fast", "--cache", "memory",
		"--trace-file", "trace.json",
	}

	// --- Act ---
	cfg, _, err := Parse(args, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 8080, cfg.HealthcheckPort)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, app.CacheMemory, cfg.Cache)
	assert.Equal(t, "trace.json", cfg.TraceFile)
}

func TestParse_FlagsOverrideSettingsFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	base := t.TempDir()
	settings := filepath.Join(t.TempDir(), "connectome.yaml")
	content := "base_directory: " + base + "\nsubject_list: sub-01,sub-02\nout_directory: /tmp/from-file\nworkers: 2\n"
	require.NoError(t, os.WriteFile(settings, []byte(content), 0o600))

	// --- Act ---
	cfg, _, err := Parse([]string{"--config", settings, "-o", "/tmp/from-flag"}, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-flag", cfg.OutDirectory)
	assert.Equal(t, []string{"sub-01", "sub-02"}, cfg.Subjects)
	assert.Equal(t, 2, cfg.Workers, "flag defaults do not override the file")
}

func TestParse_Help(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	cfg, shouldExit, err := Parse([]string{"-h"}, out)

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "-base_directory")
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	base := t.TempDir()

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown flag", args: []string{"--nope"}, wantErr: "flag provided but not defined: -nope"},
		{name: "missing base directory", args: []string{"-s", "sub-01", "-o", "/tmp/out"}, wantErr: "base_directory is required"},
		{name: "missing subjects", args: []string{"-b", base, "-o", "/tmp/out"}, wantErr: "subject_list is required"},
		{name: "only empty subjects", args: []string{"-b", base, "-s", ",,", "-o", "/tmp/out"}, wantErr: "subject_list is required"},
		{name: "missing out directory", args: []string{"-b", base, "-s", "sub-01"}, wantErr: "out_directory is required"},
		{name: "bad log format", args: []string{"-b", base, "-s", "a", "-o", "/tmp/out", "--log-format", "xml"}, wantErr: "invalid log-format"},
		{name: "bad log level", args: []string{"-b", base, "-s", "a", "-o", "/tmp/out", "--log-level", "loud"}, wantErr: "invalid log-level"},
		{name: "bad workers", args: []string{"-b", base, "-s", "a", "-o", "/tmp/out", "--workers", "many"}, wantErr: "invalid value"},
		{name: "positional argument", args: []string{"-b", base, "extra"}, wantErr: `unexpected argument "extra"`},
		{name: "missing settings file", args: []string{"--config", "/does/not/exist.yaml"}, wantErr: "failed to load settings file"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Act ---
			_, shouldExit, err := Parse(tc.args, &bytes.Buffer{})

			// --- Assert ---
			require.Error(t, err)
			assert.False(t, shouldExit)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantErr)
		})
	}
}
