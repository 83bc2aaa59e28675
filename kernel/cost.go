package kernel

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/tensor"
)

// Cost names the cost function an output node pairs with its activation.
type Cost int

const (
	Quadratic Cost = iota
	CrossEntropy
	LogLikelihood
)

const costEpsilon = 1e-10

// ComputeCost evaluates the scalar cost of yHat against target y, both
// shaped (N, features). Grounded on pkg/core/math/nn/losses.go's
// MSELoss/CrossEntropyLoss/CategoricalCrossEntropy, generalized into a
// single dispatch and extended with the spec's saturating cross-entropy
// and log-likelihood semantics.
func ComputeCost(cost Cost, yHat, y *tensor.Tensor) (float32, error) {
	if err := sameShape("ComputeCost", yHat, y); err != nil {
		return 0, err
	}
	switch cost {
	case Quadratic:
		return quadraticCost(yHat.Data(), y.Data()), nil
	case CrossEntropy:
		return crossEntropyCost(yHat.Shape().N, yHat.Data(), y.Data())
	case LogLikelihood:
		return logLikelihoodCost(yHat.Shape().N, yHat.Shape().CHW(), yHat.Data(), y.Data()), nil
	default:
		return 0, errs.New(errs.InvalidArgument, pkg+".ComputeCost", "unknown cost %d", cost)
	}
}

// CostGradient computes dJ/dyHat (paired with the output activation's own
// derivative, except for CrossEntropy/LogLikelihood which fold the
// activation derivative into a simplified yHat - y, per §4.B).
func CostGradient(cost Cost, yHat, y, dx *tensor.Tensor) error {
	if err := sameShape("CostGradient", yHat, y, dx); err != nil {
		return err
	}
	switch cost {
	case Quadratic:
		return Subtract(yHat, y, dx)
	case CrossEntropy, LogLikelihood:
		return Subtract(yHat, y, dx)
	default:
		return errs.New(errs.InvalidArgument, pkg+".CostGradient", "unknown cost %d", cost)
	}
}

func quadraticCost(yHat, y []float32) float32 {
	var sum float32
	for i, v := range yHat {
		d := v - y[i]
		sum += d * d
	}
	return 0.5 * sum
}

// crossEntropyCost implements the saturating binary cross-entropy
// described in §4.B: a -Inf contribution is clamped to -math.MaxFloat32,
// a NaN contribution is skipped, and a +Inf contribution is fatal
// (it indicates log(0) on the wrong side, a genuine numeric error
// rather than an expected saturation). The sum is averaged over the
// rows (samples) of the batch.
func crossEntropyCost(rows int, yHat, y []float32) (float32, error) {
	var sum float32
	for i, p := range yHat {
		t := y[i]
		term := t*logClamped(p) + (1-t)*logClamped(1-p)
		switch {
		case math32.IsNaN(term):
			continue
		case math32.IsInf(term, -1):
			sum += -math.MaxFloat32
		case math32.IsInf(term, 1):
			return 0, errs.New(errs.NumericOverflow, pkg+".crossEntropyCost", "cross-entropy term diverged to +Inf")
		default:
			sum += term
		}
	}
	if rows == 0 {
		return 0, nil
	}
	return -sum / float32(rows), nil
}

func logClamped(p float32) float32 {
	if p < costEpsilon {
		p = costEpsilon
	} else if p > 1-costEpsilon {
		p = 1 - costEpsilon
	}
	return math32.Log(p)
}

// logLikelihoodCost computes -log(yHat[argmax y]) summed over the batch,
// the cost paired with a softmax output node.
func logLikelihoodCost(rows, cols int, yHat, y []float32) float32 {
	var sum float32
	for i := 0; i < rows; i++ {
		p := i * cols
		target := argmax(y[p : p+cols])
		v := yHat[p+target]
		if v < costEpsilon {
			v = costEpsilon
		}
		sum += -math32.Log(v)
	}
	return sum
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row[1:] {
		if v > row[best] {
			best = i + 1
		}
	}
	return best
}
