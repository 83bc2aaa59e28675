package graph

import (
	"testing"

	"github.com/nnforge/gonn/initializer"
	"github.com/nnforge/gonn/internal/rng"
	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/tensor"
	"github.com/stretchr/testify/require"
)

func fixedWeights(values []float32) initializer.Weights {
	return func(dst []float32, source *rng.Source) { copy(dst, values) }
}

func buildFCSigmoidOutput(t *testing.T) (*Graph, NodeID, NodeID) {
	t.Helper()
	g := New()
	in, err := g.Placeholder(tensor.Matrix(2, 2))
	require.NoError(t, err)
	w := fixedWeights([]float32{0.1, -0.2, 0.3, 0.4})
	b := fixedWeights([]float32{0.0, 0.0})
	fc, err := g.FullyConnected(in, 2, WithWeightsInit(w), WithBiasInit(b))
	require.NoError(t, err)
	act, err := g.Activation(fc, kernel.Sigmoid)
	require.NoError(t, err)
	out, err := g.Output(act, kernel.Identity, kernel.Quadratic)
	require.NoError(t, err)
	return g, in, out
}

func TestForwardProducesExpectedShape(t *testing.T) {
	g, _, out := buildFCSigmoidOutput(t)
	exec, err := g.Build(out)
	require.NoError(t, err)

	x, err := tensor.From([]float32{1, 2, 3, 4}, tensor.Matrix(2, 2))
	require.NoError(t, err)
	defer x.Release()

	y, err := exec.Forward(x, false)
	require.NoError(t, err)
	defer y.Release()
	require.Equal(t, tensor.Matrix(2, 2), y.Shape())
	for _, v := range y.Data() {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestBackwardPopulatesParameterGradients(t *testing.T) {
	g, _, out := buildFCSigmoidOutput(t)
	exec, err := g.Build(out)
	require.NoError(t, err)

	x, err := tensor.From([]float32{1, 2, 3, 4}, tensor.Matrix(2, 2))
	require.NoError(t, err)
	defer x.Release()
	target, err := tensor.From([]float32{1, 0, 0, 1}, tensor.Matrix(2, 2))
	require.NoError(t, err)
	defer target.Release()

	grads, err := exec.Backward(x, target)
	require.NoError(t, err)
	require.Len(t, grads, 1)
	for _, params := range grads {
		for _, p := range params {
			require.NotNil(t, p.Grad)
			nonZero := false
			for _, v := range p.Grad.Data() {
				if v != 0 {
					nonZero = true
				}
			}
			require.True(t, nonZero)
		}
	}
}

func TestLossDecreasesAfterGradientStep(t *testing.T) {
	g, _, out := buildFCSigmoidOutput(t)
	exec, err := g.Build(out)
	require.NoError(t, err)

	x, err := tensor.From([]float32{1, 2, 3, 4}, tensor.Matrix(2, 2))
	require.NoError(t, err)
	defer x.Release()
	target, err := tensor.From([]float32{1, 0, 0, 1}, tensor.Matrix(2, 2))
	require.NoError(t, err)
	defer target.Release()

	before, err := exec.Loss(x, target, false)
	require.NoError(t, err)

	grads, err := exec.Backward(x, target)
	require.NoError(t, err)
	const lr = float32(0.5)
	for _, params := range grads {
		for _, p := range params {
			pd, gd := p.Data.Data(), p.Grad.Data()
			for i := range pd {
				pd[i] -= lr * gd[i]
			}
		}
	}

	after, err := exec.Loss(x, target, false)
	require.NoError(t, err)
	require.Less(t, after, before)
}

func TestBuildRejectsNonOutputTerminal(t *testing.T) {
	g := New()
	in, err := g.Placeholder(tensor.Matrix(1, 2))
	require.NoError(t, err)
	_, err = g.Build(in)
	require.Error(t, err)
}

func TestForwardRejectsMismatchedInputShape(t *testing.T) {
	g, _, out := buildFCSigmoidOutput(t)
	exec, err := g.Build(out)
	require.NoError(t, err)

	x, err := tensor.From([]float32{1, 2, 3}, tensor.Matrix(1, 3))
	require.NoError(t, err)
	defer x.Release()
	_, err = exec.Forward(x, false)
	require.Error(t, err)
}

func TestSumNodeAddsTwoBranches(t *testing.T) {
	g := New()
	in, err := g.Placeholder(tensor.Matrix(1, 2))
	require.NoError(t, err)
	w1 := fixedWeights([]float32{1, 0, 0, 1})
	w2 := fixedWeights([]float32{0, 1, 1, 0})
	zeroBias := fixedWeights([]float32{0, 0})
	a, err := g.FullyConnected(in, 2, WithWeightsInit(w1), WithBiasInit(zeroBias))
	require.NoError(t, err)
	b, err := g.FullyConnected(in, 2, WithWeightsInit(w2), WithBiasInit(zeroBias))
	require.NoError(t, err)
	s, err := g.Sum(a, b)
	require.NoError(t, err)
	out, err := g.Output(s, kernel.Identity, kernel.Quadratic)
	require.NoError(t, err)

	exec, err := g.Build(out)
	require.NoError(t, err)
	x, err := tensor.From([]float32{1, 2}, tensor.Matrix(1, 2))
	require.NoError(t, err)
	defer x.Release()
	y, err := exec.Forward(x, false)
	require.NoError(t, err)
	defer y.Release()
	require.InDeltaSlice(t, []float32{3, 3}, y.Data(), 1e-5)
}

func TestSoftmaxOutputSumsToOne(t *testing.T) {
	g := New()
	in, err := g.Placeholder(tensor.Matrix(1, 3))
	require.NoError(t, err)
	out, err := g.Softmax(in, 2)
	require.NoError(t, err)
	exec, err := g.Build(out)
	require.NoError(t, err)
	x, err := tensor.From([]float32{1, 2, 3}, tensor.Matrix(1, 3))
	require.NoError(t, err)
	defer x.Release()
	y, err := exec.Forward(x, false)
	require.NoError(t, err)
	defer y.Release()
	require.Equal(t, tensor.Matrix(1, 2), y.Shape())
	var sum float32
	for _, v := range y.Data() {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-5)
}

func TestNodeEqualsComparesKindShapeAndParameters(t *testing.T) {
	g := New()
	in, err := g.Placeholder(tensor.Matrix(1, 2))
	require.NoError(t, err)
	w := fixedWeights([]float32{0.1, -0.2, 0.3, 0.4})
	b := fixedWeights([]float32{0.0, 0.0})
	a, err := g.FullyConnected(in, 2, WithWeightsInit(w), WithBiasInit(b))
	require.NoError(t, err)
	same, err := g.FullyConnected(in, 2, WithWeightsInit(w), WithBiasInit(b))
	require.NoError(t, err)
	different, err := g.FullyConnected(in, 2, WithWeightsInit(fixedWeights([]float32{1, 1, 1, 1})), WithBiasInit(b))
	require.NoError(t, err)

	nodeA, err := g.node(a)
	require.NoError(t, err)
	nodeSame, err := g.node(same)
	require.NoError(t, err)
	nodeDifferent, err := g.node(different)
	require.NoError(t, err)

	require.True(t, nodeA.Equals(nodeSame))
	require.False(t, nodeA.Equals(nodeDifferent))
	require.Equal(t, nodeA.ParameterHash(), nodeSame.ParameterHash())
	require.NotEqual(t, nodeA.ParameterHash(), nodeDifferent.ParameterHash())
}

func TestNumericalGradientMatchesAnalytic(t *testing.T) {
	g, _, out := buildFCSigmoidOutput(t)
	exec, err := g.Build(out)
	require.NoError(t, err)

	x, err := tensor.From([]float32{1, 2, 3, 4}, tensor.Matrix(2, 2))
	require.NoError(t, err)
	defer x.Release()
	target, err := tensor.From([]float32{1, 0, 0, 1}, tensor.Matrix(2, 2))
	require.NoError(t, err)
	defer target.Release()

	grads, err := exec.Backward(x, target)
	require.NoError(t, err)

	const eps = 1e-2
	for _, params := range grads {
		for _, p := range params {
			pd := p.Data.Data()
			gd := p.Grad.Data()
			for i := range pd {
				orig := pd[i]
				pd[i] = orig + eps
				plus, err := exec.Loss(x, target, false)
				require.NoError(t, err)
				pd[i] = orig - eps
				minus, err := exec.Loss(x, target, false)
				require.NoError(t, err)
				pd[i] = orig

				numeric := (plus - minus) / (2 * eps)
				require.InDelta(t, numeric, gd[i], 2e-2)
			}
		}
	}
}
