package merge

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/connectome/internal/registry"
)

func TestOnRunMerge(t *testing.T) {
	t.Parallel()
	env := &registry.RunEnv{Logger: slog.Default()}

	out, err := OnRunMerge(context.Background(), env, &Input{In1: "FA.nii.gz", In2: "RD.nii.gz", In4: "GFA.nii.gz"})
	require.NoError(t, err)
	assert.Equal(t, []string{"FA.nii.gz", "RD.nii.gz", "GFA.nii.gz"}, out.Out)

	out, err = OnRunMerge(context.Background(), env, &Input{})
	require.NoError(t, err)
	assert.NotNil(t, out.Out)
	assert.Empty(t, out.Out)
}
