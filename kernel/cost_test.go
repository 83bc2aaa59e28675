package kernel_test

import (
	"testing"

	"github.com/nnforge/gonn/kernel"
	"github.com/stretchr/testify/require"
)

func TestQuadraticCostZeroWhenEqual(t *testing.T) {
	yHat := mustTensor(t, []float32{1, 2, 3}, 1, 3)
	y := mustTensor(t, []float32{1, 2, 3}, 1, 3)
	c, err := kernel.ComputeCost(kernel.Quadratic, yHat, y)
	require.NoError(t, err)
	require.Equal(t, float32(0), c)
}

func TestQuadraticCostPositive(t *testing.T) {
	yHat := mustTensor(t, []float32{1, 2}, 1, 2)
	y := mustTensor(t, []float32{0, 0}, 1, 2)
	c, err := kernel.ComputeCost(kernel.Quadratic, yHat, y)
	require.NoError(t, err)
	require.InDelta(t, float32(2.5), c, 1e-6) // 0.5*(1+4)
}

func TestCrossEntropyCostMatchesOneHot(t *testing.T) {
	yHat := mustTensor(t, []float32{0.9, 0.1}, 1, 2)
	y := mustTensor(t, []float32{1, 0}, 1, 2)
	c, err := kernel.ComputeCost(kernel.CrossEntropy, yHat, y)
	require.NoError(t, err)
	require.Greater(t, c, float32(0))
}

func TestLogLikelihoodCostForCorrectPrediction(t *testing.T) {
	yHat := mustTensor(t, []float32{0.8, 0.2}, 1, 2)
	y := mustTensor(t, []float32{1, 0}, 1, 2)
	c, err := kernel.ComputeCost(kernel.LogLikelihood, yHat, y)
	require.NoError(t, err)
	require.Greater(t, c, float32(0))
	require.Less(t, c, float32(1))
}

func TestCostGradientIsDifference(t *testing.T) {
	yHat := mustTensor(t, []float32{0.5, 0.5}, 1, 2)
	y := mustTensor(t, []float32{1, 0}, 1, 2)
	dx := mustTensor(t, make([]float32, 2), 1, 2)
	require.NoError(t, kernel.CostGradient(kernel.Quadratic, yHat, y, dx))
	require.Equal(t, []float32{-0.5, 0.5}, dx.Data())
}
