package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Precedence(t *testing.T) {
	// t.Setenv forbids t.Parallel.

	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "connectome.yaml")
	settings := `
out_directory: /from/file
workers: 2
log_level: warn
models: [CSD]
thresholds: [0, 5, 10]
`
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o600))
	t.Setenv("CONNECTOME_WORKERS", "3")
	t.Setenv("CONNECTOME_BASE_DIRECTORY", "/from/env")

	// --- Act ---
	cfg, err := LoadSettings(path, map[string]any{"log_level": "debug"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.OutDirectory)
	assert.Equal(t, "/from/env", cfg.BaseDirectory)
	assert.Equal(t, 3, cfg.Workers, "environment overrides the settings file")
	assert.Equal(t, "debug", cfg.LogLevel, "explicit overrides win")
	assert.Equal(t, []string{"CSD"}, cfg.Models)
	assert.Equal(t, []float64{0, 5, 10}, cfg.Thresholds)
	assert.Equal(t, "fsaverage", cfg.SourceSubject, "defaults fill the gaps")
	assert.Equal(t, CacheSQLite, cfg.Cache)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadSettings_EnvironmentLists(t *testing.T) {
	// t.Setenv forbids t.Parallel.

	// --- Arrange ---
	t.Setenv("CONNECTOME_MODELS", "CSA, CSD")
	t.Setenv("CONNECTOME_THRESHOLDS", "0,10,")
	t.Setenv("CONNECTOME_SPLINE_STEP_LENGTH", "0.25")

	// --- Act ---
	cfg, err := LoadSettings("", nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"CSA", "CSD"}, cfg.Models)
	assert.Equal(t, []float64{0, 10}, cfg.Thresholds)
	assert.Equal(t, 0.25, cfg.SplineStepLength)
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Parallel()

	// --- Act ---
	cfg, err := LoadSettings("", nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"CSA", "CSD"}, cfg.Models)
	assert.Equal(t, []float64{0, 10}, cfg.Thresholds)
	assert.Equal(t, "aparc", cfg.ParcellationName)
	assert.Equal(t, 0.5, cfg.SplineStepLength)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load settings file")
}

func TestNewConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	valid := Config{
		BaseDirectory: dir,
		Subjects:      []string{"sub-01"},
		OutDirectory:  filepath.Join(dir, "out"),
		Workers:       1,
		Cache:         CacheMemory,
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no base directory", mutate: func(c *Config) { c.BaseDirectory = "" }, wantErr: "base_directory is required"},
		{name: "no subjects", mutate: func(c *Config) { c.Subjects = nil }, wantErr: "subject_list is required"},
		{name: "no out directory", mutate: func(c *Config) { c.OutDirectory = "" }, wantErr: "out_directory is required"},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: "workers must be at least 1"},
		{name: "bad cache", mutate: func(c *Config) { c.Cache = "redis" }, wantErr: `invalid cache "redis"`},
		{
			name:    "missing template directory",
			mutate:  func(c *Config) { c.TemplateDirectory = filepath.Join(dir, "missing") },
			wantErr: "template_directory",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tc.mutate(&cfg)

			got, err := NewConfig(cfg)

			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, cfg, *got)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
