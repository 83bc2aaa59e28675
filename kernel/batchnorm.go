package kernel

import (
	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/tensor"
)

// BatchNormMode selects which axis batch normalization gathers
// statistics over. Spatial matches the usual convolutional-network
// convention (stats per channel, broadcast over H,W); PerActivation
// keeps a separate statistic per (C,H,W) position, broadcast over N
// only — used after fully-connected layers.
type BatchNormMode int

const (
	Spatial BatchNormMode = iota
	PerActivation
)

const batchNormEpsilon = 1e-5

// BatchNormCache retains the per-group batch statistics and
// normalized values a training-mode forward pass computed, for use by
// the matching backward call.
type BatchNormCache struct {
	mode      BatchNormMode
	groups    int
	groupSize int
	mean      []float32
	variance  []float32
	xhat      []float32
}

func groupLayout(mode BatchNormMode, shape tensor.Shape) (groups, groupSize int) {
	if mode == Spatial {
		return shape.C, shape.N * shape.HW()
	}
	return shape.CHW(), shape.N
}

// groupOf returns the group index for flat index i, for both modes.
func groupOf(mode BatchNormMode, shape tensor.Shape, i int) int {
	chw := shape.CHW()
	if mode == Spatial {
		hw := shape.HW()
		return (i % chw) / hw
	}
	return i % chw
}

// BatchNormForward normalizes x into y. In training mode it computes
// batch statistics, folds them into the running mean/variance via the
// cumulative-moving-average factor 1/(1+iteration), advances
// iteration, and returns a cache required by BatchNormBackward. In
// inference mode it normalizes using the running statistics only and
// returns a nil cache.
func BatchNormForward(mode BatchNormMode, x, gamma, beta, runningMean, runningVariance *tensor.Tensor, y *tensor.Tensor, training bool, iteration *int) (*BatchNormCache, error) {
	if err := sameShape("BatchNormForward", x, y); err != nil {
		return nil, err
	}
	groups, groupSize := groupLayout(mode, x.Shape())
	if gamma.Shape().Size() != groups || beta.Shape().Size() != groups {
		return nil, errs.New(errs.ShapeMismatch, pkg+".BatchNormForward", "gamma/beta length must be %d, got %d/%d", groups, gamma.Shape().Size(), beta.Shape().Size())
	}
	xd, yd, gd, bd := x.Data(), y.Data(), gamma.Data(), beta.Data()
	rmd, rvd := runningMean.Data(), runningVariance.Data()

	var mean, variance []float32
	if training {
		mean = make([]float32, groups)
		variance = make([]float32, groups)
		sums := make([]float32, groups)
		sqSums := make([]float32, groups)
		for i, v := range xd {
			g := groupOf(mode, x.Shape(), i)
			sums[g] += v
			sqSums[g] += v * v
		}
		for g := 0; g < groups; g++ {
			mean[g] = sums[g] / float32(groupSize)
			variance[g] = sqSums[g]/float32(groupSize) - mean[g]*mean[g]
			if variance[g] < 0 {
				variance[g] = 0
			}
		}
		factor := float32(1.0 / float64(1+*iteration))
		for g := 0; g < groups; g++ {
			rmd[g] = (1-factor)*rmd[g] + factor*mean[g]
			rvd[g] = (1-factor)*rvd[g] + factor*variance[g]
		}
		*iteration++
	} else {
		mean = rmd
		variance = rvd
	}

	xhat := make([]float32, len(xd))
	for i, v := range xd {
		g := groupOf(mode, x.Shape(), i)
		xh := (v - mean[g]) / math32.Sqrt(variance[g]+batchNormEpsilon)
		xhat[i] = xh
		yd[i] = gd[g]*xh + bd[g]
	}

	if !training {
		return nil, nil
	}
	return &BatchNormCache{mode: mode, groups: groups, groupSize: groupSize, mean: mean, variance: variance, xhat: xhat}, nil
}

// BatchNormBackward computes dx, dGamma, dBeta from dy and the cache a
// training-mode BatchNormForward call produced.
func BatchNormBackward(cache *BatchNormCache, shape tensor.Shape, dy, gamma *tensor.Tensor, dx, dGamma, dBeta *tensor.Tensor) error {
	if cache == nil {
		return errs.New(errs.InvalidArgument, pkg+".BatchNormBackward", "nil cache: backward requires a training-mode forward pass")
	}
	groups, groupSize := cache.groups, cache.groupSize
	dyd, gd := dy.Data(), gamma.Data()
	dxd, dgd, dbd := dx.Data(), dGamma.Data(), dBeta.Data()

	sumDy := make([]float32, groups)
	sumDyXhat := make([]float32, groups)
	for i, g := range dyd {
		grp := groupOf(cache.mode, shape, i)
		sumDy[grp] += g
		sumDyXhat[grp] += g * cache.xhat[i]
	}
	for g := 0; g < groups; g++ {
		dgd[g] = sumDyXhat[g]
		dbd[g] = sumDy[g]
	}

	n := float32(groupSize)
	for i := range dxd {
		g := groupOf(cache.mode, shape, i)
		invStd := 1.0 / math32.Sqrt(cache.variance[g]+batchNormEpsilon)
		dxd[i] = gd[g] * invStd / n * (n*dyd[i] - sumDy[g] - cache.xhat[i]*sumDyXhat[g])
	}
	return nil
}
