package kernel_test

import (
	"testing"

	"github.com/nnforge/gonn/internal/rng"
	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/tensor"
	"github.com/stretchr/testify/require"
)

func TestDropoutInferenceIsIdentity(t *testing.T) {
	x, err := tensor.From([]float32{1, 2, 3, 4}, tensor.Matrix(1, 4))
	require.NoError(t, err)
	y, err := tensor.Like(x, tensor.Default)
	require.NoError(t, err)
	mask := make([]float32, 4)
	require.NoError(t, kernel.DropoutForward(x, y, mask, 0.5, false, rng.New(1)))
	require.Equal(t, x.Data(), y.Data())
}

func TestDropoutTrainingScalesSurvivors(t *testing.T) {
	x, err := tensor.From([]float32{1, 1, 1, 1, 1, 1, 1, 1}, tensor.Matrix(1, 8))
	require.NoError(t, err)
	y, err := tensor.Like(x, tensor.Default)
	require.NoError(t, err)
	mask := make([]float32, 8)
	require.NoError(t, kernel.DropoutForward(x, y, mask, 0.5, true, rng.New(7)))
	for i, v := range y.Data() {
		if mask[i] == 0 {
			require.Equal(t, float32(0), v)
		} else {
			require.InDelta(t, float32(2), v, 1e-6)
		}
	}
}

func TestDropoutBackwardAppliesMask(t *testing.T) {
	dy, err := tensor.From([]float32{1, 1, 1, 1}, tensor.Matrix(1, 4))
	require.NoError(t, err)
	dx, err := tensor.Like(dy, tensor.Default)
	require.NoError(t, err)
	mask := []float32{2, 0, 2, 0}
	require.NoError(t, kernel.DropoutBackward(dy, dx, mask))
	require.Equal(t, []float32{2, 0, 2, 0}, dx.Data())
}
