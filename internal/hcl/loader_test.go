package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const betManifest = `
runner "fsl_bet" {
  description = "FSL brain extraction"
  command     = ["bet", input.in_file, output.out_file, "-f", input.frac, flag(input.mask, "-m")]
  env = {
    FSLOUTPUTTYPE = "NIFTI_GZ"
  }

  input "in_file" {
    type = path
  }
  input "frac" {
    type    = number
    default = 0.5
  }
  input "mask" {
    type    = bool
    default = false
  }

  output "out_file" {
    type  = string
    value = "${node.dir}/${stem(input.in_file)}_brain.nii.gz"
  }
  output "mask_file" {
    type   = string
    value  = "${node.dir}/${stem(input.in_file)}_brain_mask.nii.gz"
    exists = input.mask
  }
}
`

func TestLoader_LoadsBuiltinManifests(t *testing.T) {
	// Arrange
	builtin := fstest.MapFS{"fsl.hcl": {Data: []byte(betManifest)}}
	loader := NewLoader(builtin)

	// Act
	model, converter, err := loader.Load(context.Background())

	// Assert
	require.NoError(t, err)
	require.NotNil(t, converter)
	require.Contains(t, model.Tools, "fsl_bet")

	def := model.Tools["fsl_bet"]
	assert.Equal(t, "builtin:fsl.hcl", def.Source)
	assert.True(t, def.IsCommand())
	assert.NotNil(t, def.Env)
	assert.Nil(t, def.Stdout)
	assert.Nil(t, def.Lifecycle)

	require.Len(t, def.Inputs, 3)
	assert.Equal(t, cty.String, def.Inputs["in_file"].Type)
	assert.False(t, def.Inputs["in_file"].Optional)
	require.NotNil(t, def.Inputs["frac"].Default)
	assert.True(t, def.Inputs["frac"].Default.Equals(cty.NumberFloatVal(0.5)).True())
	assert.True(t, def.Inputs["mask"].Optional)

	require.Len(t, def.Outputs, 2)
	assert.Nil(t, def.Outputs["out_file"].Exists)
	assert.NotNil(t, def.Outputs["mask_file"].Exists)
}

func TestLoader_DiskManifestOverridesBuiltin(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	override := `
runner "fsl_bet" {
  description = "site specific bet"
  command     = ["bet2", input.in_file]
  input "in_file" {}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bet.hcl"), []byte(override), 0o644))
	loader := NewLoader(fstest.MapFS{"fsl.hcl": {Data: []byte(betManifest)}})

	// Act
	model, _, err := loader.Load(context.Background(), dir, filepath.Join(dir, "missing"))

	// Assert
	require.NoError(t, err)
	def := model.Tools["fsl_bet"]
	assert.Equal(t, "site specific bet", def.Description)
	assert.Equal(t, filepath.Join(dir, "bet.hcl"), def.Source)
	assert.Equal(t, cty.DynamicPseudoType, def.Inputs["in_file"].Type)
}

func TestLoader_Rejections(t *testing.T) {
	testCases := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "no execution mode",
			manifest: `runner "empty" {}`,
			wantErr:  "must declare exactly one of",
		},
		{
			name: "two execution modes",
			manifest: `
runner "both" {
  command = ["true"]
  lifecycle {
    on_run = "OnRunBoth"
  }
}`,
			wantErr: "must declare exactly one of",
		},
		{
			name: "command output without value",
			manifest: `
runner "novalue" {
  command = ["true"]
  output "out_file" {
    type = string
  }
}`,
			wantErr: "must give every output a 'value'",
		},
		{
			name: "unknown type keyword",
			manifest: `
runner "badtype" {
  passthrough = true
  input "x" {
    type = strin
  }
}`,
			wantErr: `unknown primitive type "strin"`,
		},
		{
			name:     "syntax error",
			manifest: `runner "broken" {`,
			wantErr:  "failed to parse HCL file",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			loader := NewLoader(fstest.MapFS{"m.hcl": {Data: []byte(tc.manifest)}})

			_, _, err := loader.Load(context.Background())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
