package kernel_test

import (
	"testing"

	"github.com/nnforge/gonn/kernel"
	"github.com/stretchr/testify/require"
)

func TestReLUMatrixScenario(t *testing.T) {
	x := mustTensor(t, []float32{
		-1, -0.1, 2,
		1, 1, 2,
		0, -0.3, 99,
	}, 3, 3)
	y := mustTensor(t, make([]float32, 9), 3, 3)
	require.NoError(t, kernel.ActivationForward(kernel.ReLU, x, y))

	want := []float32{0, 0, 2, 1, 1, 2, 0, 0, 99}
	require.Equal(t, want, y.Data())
}

func TestSigmoidForwardBackwardRoundTrip(t *testing.T) {
	x := mustTensor(t, []float32{-2, 0, 2}, 1, 3)
	y := mustTensor(t, make([]float32, 3), 1, 3)
	require.NoError(t, kernel.ActivationForward(kernel.Sigmoid, x, y))
	for _, v := range y.Data() {
		require.Greater(t, v, float32(0))
		require.Less(t, v, float32(1))
	}

	dy := mustTensor(t, []float32{1, 1, 1}, 1, 3)
	dx := mustTensor(t, make([]float32, 3), 1, 3)
	require.NoError(t, kernel.ActivationBackward(kernel.Sigmoid, y, dy, dx))
	for i, v := range dx.Data() {
		yv := y.Data()[i]
		require.InDelta(t, yv*(1-yv), v, 1e-6)
	}
}

func TestLeakyReLUNegativeSlope(t *testing.T) {
	x := mustTensor(t, []float32{-10}, 1, 1)
	y := mustTensor(t, make([]float32, 1), 1, 1)
	require.NoError(t, kernel.ActivationForward(kernel.LeakyReLU, x, y))
	require.InDelta(t, float32(-0.1), y.Data()[0], 1e-6)
}

func TestIdentityActivation(t *testing.T) {
	x := mustTensor(t, []float32{1, -2, 3.5}, 1, 3)
	y := mustTensor(t, make([]float32, 3), 1, 3)
	require.NoError(t, kernel.ActivationForward(kernel.Identity, x, y))
	require.Equal(t, x.Data(), y.Data())
}
