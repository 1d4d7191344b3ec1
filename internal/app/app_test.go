package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/connectome/internal/hcl"
	"github.com/vk/connectome/modules/manifests"
)

func TestNewApp_RegistersEmbeddedManifests(t *testing.T) {
	t.Parallel()

	// --- Act ---
	a, logs := SetupAppTest(t, &Config{})

	// --- Assert ---
	for _, tool := range []string{"fs_recon_all", "fsl_eddy", "calc_matrix", "selectfiles", "freesurfer_values"} {
		_, _, ok := a.Registry().Tool(tool)
		assert.True(t, ok, "tool %s should be registered", tool)
	}
	_, handler, _ := a.Registry().Tool("fsrename")
	assert.NotNil(t, handler, "fsrename is bound to a Go handler")
	assert.Contains(t, logs.String(), "Registry validation passed.")
}

func TestNewApp_ModulesPathOverridesTool(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	override := `
runner "fsl_erode" {
  description = "site specific erosion"
  command     = ["my_erode", input.in_file, output.out_file]
  input "in_file" {
    type = path
  }
  output "out_file" {
    type  = path
    value = "${node.dir}/eroded.nii.gz"
  }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.hcl"), []byte(override), 0o600))

	// --- Act ---
	a, _ := SetupAppTest(t, &Config{ModulesPath: dir})

	// --- Assert ---
	def, _, ok := a.Registry().Tool("fsl_erode")
	require.True(t, ok)
	assert.Equal(t, "site specific erosion", def.Description)
}

func TestNewApp_PanicsOnInvalidManifest(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.hcl"), []byte(`runner "x" {`), 0o600))

	// --- Act ---
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		NewApp(&SafeBuffer{}, &Config{ModulesPath: dir}, hcl.NewLoader(manifests.FS))
	}()

	// --- Assert ---
	require.NotNil(t, recovered, "NewApp should panic on a manifest it cannot parse")
	err, ok := recovered.(error)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "failed to load tool manifests")
}

func TestNewApp_PanicsWithoutHandlers(t *testing.T) {
	t.Parallel()

	// --- Act & Assert ---
	// The merge module alone leaves OnRunSelectFiles and friends unbound.
	assert.Panics(t, func() {
		NewApp(&SafeBuffer{}, &Config{}, hcl.NewLoader(manifests.FS), coreModules[2])
	})
}
