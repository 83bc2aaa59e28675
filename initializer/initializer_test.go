package initializer_test

import (
	"testing"

	"github.com/nnforge/gonn/initializer"
	"github.com/nnforge/gonn/internal/rng"
	"github.com/stretchr/testify/require"
)

func TestLeCunUniformStaysWithinBounds(t *testing.T) {
	source := rng.New(1)
	dst := make([]float32, 256)
	initializer.LeCunUniform(64)(dst, source)
	limit := float32(0.21650635) // sqrt(3/64)
	for _, v := range dst {
		require.LessOrEqual(t, v, limit+1e-4)
		require.GreaterOrEqual(t, v, -limit-1e-4)
	}
}

func TestGlorotUniformSymmetricAroundZero(t *testing.T) {
	source := rng.New(2)
	dst := make([]float32, 4096)
	initializer.GlorotUniform(32, 32)(dst, source)
	var sum float32
	for _, v := range dst {
		sum += v
	}
	mean := sum / float32(len(dst))
	require.InDelta(t, 0, mean, 0.02)
}

func TestHeNormalProducesNonZeroValues(t *testing.T) {
	source := rng.New(3)
	dst := make([]float32, 16)
	initializer.HeNormal(16)(dst, source)
	var nonZero int
	for _, v := range dst {
		if v != 0 {
			nonZero++
		}
	}
	require.Greater(t, nonZero, 0)
}

func TestZeroBiasFillsZero(t *testing.T) {
	dst := []float32{1, 2, 3}
	initializer.ZeroBias(dst, nil)
	require.Equal(t, []float32{0, 0, 0}, dst)
}

func TestGammaOnesAndBetaZeros(t *testing.T) {
	gamma := make([]float32, 4)
	beta := make([]float32, 4)
	initializer.GammaOnes(gamma, nil)
	initializer.BetaZeros(beta, nil)
	for _, v := range gamma {
		require.Equal(t, float32(1), v)
	}
	for _, v := range beta {
		require.Equal(t, float32(0), v)
	}
}
