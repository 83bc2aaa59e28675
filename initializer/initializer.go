// Package initializer implements the weight, bias, and batch-norm
// scale/shift initializers a graph node applies to its parameters at
// construction time. Grounded on pkg/core/math/nn/parameter.go's
// InitXavier/InitXavierNormal (the Glorot pair), generalized into the
// full LeCun/Glorot/He family component G of the specification names,
// and rewired onto internal/rng's thread-local sources instead of a
// single shared *rand.Rand.
package initializer

import (
	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/internal/rng"
)

// Weights fills dst with values drawn by a weight initializer.
type Weights func(dst []float32, source *rng.Source)

// Biases fills dst with values drawn by a bias initializer. Aliased to
// Weights: both weight and bias (and gamma/beta) initializers share
// the same shape and are freely interchangeable at call sites.
type Biases = Weights

func uniform(dst []float32, source *rng.Source, limit float32) {
	for i := range dst {
		dst[i] = source.Uniform(-limit, limit)
	}
}

func normal(dst []float32, source *rng.Source, stddev float32) {
	for i := range dst {
		dst[i] = source.NormFloat32() * stddev
	}
}

// LeCunUniform draws from U(-sqrt(3/fanIn), sqrt(3/fanIn)).
func LeCunUniform(fanIn int) Weights {
	limit := math32.Sqrt(3.0 / float32(fanIn))
	return func(dst []float32, source *rng.Source) { uniform(dst, source, limit) }
}

// LeCunNormal draws from N(0, 1/fanIn).
func LeCunNormal(fanIn int) Weights {
	stddev := math32.Sqrt(1.0 / float32(fanIn))
	return func(dst []float32, source *rng.Source) { normal(dst, source, stddev) }
}

// GlorotUniform (a.k.a. Xavier uniform) draws from
// U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
func GlorotUniform(fanIn, fanOut int) Weights {
	limit := math32.Sqrt(6.0 / float32(fanIn+fanOut))
	return func(dst []float32, source *rng.Source) { uniform(dst, source, limit) }
}

// GlorotNormal (a.k.a. Xavier normal) draws from N(0, 2/(fanIn+fanOut)).
func GlorotNormal(fanIn, fanOut int) Weights {
	stddev := math32.Sqrt(2.0 / float32(fanIn+fanOut))
	return func(dst []float32, source *rng.Source) { normal(dst, source, stddev) }
}

// HeUniform draws from U(-sqrt(6/fanIn), sqrt(6/fanIn)), for ReLU-family activations.
func HeUniform(fanIn int) Weights {
	limit := math32.Sqrt(6.0 / float32(fanIn))
	return func(dst []float32, source *rng.Source) { uniform(dst, source, limit) }
}

// HeNormal draws from N(0, 2/fanIn), for ReLU-family activations.
func HeNormal(fanIn int) Weights {
	stddev := math32.Sqrt(2.0 / float32(fanIn))
	return func(dst []float32, source *rng.Source) { normal(dst, source, stddev) }
}

// ZeroBias fills dst with zeros.
func ZeroBias(dst []float32, source *rng.Source) {
	for i := range dst {
		dst[i] = 0
	}
}

// GaussianBias draws from N(0, stddev^2).
func GaussianBias(stddev float32) Biases {
	return func(dst []float32, source *rng.Source) { normal(dst, source, stddev) }
}

// GammaOnes fills dst with 1 (batch-norm scale, identity at init).
func GammaOnes(dst []float32, source *rng.Source) {
	for i := range dst {
		dst[i] = 1
	}
}

// BetaZeros fills dst with 0 (batch-norm shift, identity at init).
func BetaZeros(dst []float32, source *rng.Source) {
	for i := range dst {
		dst[i] = 0
	}
}
