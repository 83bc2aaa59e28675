package train_test

import (
	"testing"

	"github.com/nnforge/gonn/dataset"
	"github.com/nnforge/gonn/graph"
	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/optim"
	"github.com/nnforge/gonn/tensor"
	"github.com/nnforge/gonn/train"
	"github.com/stretchr/testify/require"
)

func xorBatch(t *testing.T) dataset.Batch {
	t.Helper()
	x, err := tensor.From([]float32{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
	}, tensor.Matrix(4, 2))
	require.NoError(t, err)
	y, err := tensor.From([]float32{
		0, 1, // (0,0) -> false; "true" is argmax index 0, so false is index 1
		1, 0, // (0,1) -> true
		1, 0, // (1,0) -> true
		0, 1, // (1,1) -> false
	}, tensor.Matrix(4, 2))
	require.NoError(t, err)
	return dataset.Batch{X: x, Y: y}
}

func buildXORGraph(t *testing.T) (*graph.Graph, *graph.Executor) {
	t.Helper()
	g := graph.New()
	in, err := g.Placeholder(tensor.Matrix(4, 2))
	require.NoError(t, err)
	// Hidden dense+sigmoid layer gives the classifier its only nonlinear
	// decision surface; Softmax's own projection is the second weight
	// layer XOR needs, since neither layer alone can separate it.
	hidden, err := g.FullyConnected(in, 4)
	require.NoError(t, err)
	act, err := g.Activation(hidden, kernel.Sigmoid)
	require.NoError(t, err)
	out, err := g.Softmax(act, 2)
	require.NoError(t, err)
	exec, err := g.Build(out)
	require.NoError(t, err)
	return g, exec
}

func TestXORConvergesWithAdaDelta(t *testing.T) {
	_, exec := buildXORGraph(t)
	d, err := dataset.New([]dataset.Batch{xorBatch(t)})
	require.NoError(t, err)

	opt, err := optim.NewAdaDelta(0.95, 1e-6)
	require.NoError(t, err)
	report, err := train.Run(exec, d, opt, 3000)
	require.NoError(t, err)
	require.Equal(t, train.Completed, report.StopReason)

	b := xorBatch(t)
	defer b.X.Release()
	defer b.Y.Release()
	yHat, err := exec.Forward(b.X, false)
	require.NoError(t, err)
	defer yHat.Release()

	rows, cols := yHat.Shape().N, yHat.Shape().CHW()
	yd, targetd := yHat.Data(), b.Y.Data()
	correct := 0
	for i := 0; i < rows; i++ {
		p := i * cols
		if argmax(yd[p:p+cols]) == argmax(targetd[p:p+cols]) {
			correct++
		}
	}
	require.Equal(t, rows, correct)
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

func TestRunRejectsNonPositiveEpochs(t *testing.T) {
	_, exec := buildXORGraph(t)
	d, err := dataset.New([]dataset.Batch{xorBatch(t)})
	require.NoError(t, err)
	opt, err := optim.NewAdaDelta(0.95, 1e-6)
	require.NoError(t, err)
	_, err = train.Run(exec, d, opt, 0)
	require.Error(t, err)
}

func TestRunRejectsSmallMaxBatchSize(t *testing.T) {
	_, exec := buildXORGraph(t)
	d, err := dataset.New([]dataset.Batch{xorBatch(t)})
	require.NoError(t, err)
	opt, err := optim.NewAdaDelta(0.95, 1e-6)
	require.NoError(t, err)
	_, err = train.Run(exec, d, opt, 10, train.WithMaxBatchSize(1))
	require.Error(t, err)
}

func TestRunReportsValidationCostPerEpoch(t *testing.T) {
	_, exec := buildXORGraph(t)
	trainSet, err := dataset.New([]dataset.Batch{xorBatch(t)})
	require.NoError(t, err)
	valSet, err := dataset.New([]dataset.Batch{xorBatch(t)})
	require.NoError(t, err)

	opt, err := optim.NewAdaDelta(0.95, 1e-6)
	require.NoError(t, err)
	report, err := train.Run(exec, trainSet, opt, 5, train.WithValidation(valSet, 1e-6, 100))
	require.NoError(t, err)
	require.Len(t, report.Epochs, 5)
	for _, e := range report.Epochs {
		require.Greater(t, e.ValidationCost, float32(0))
	}
}
