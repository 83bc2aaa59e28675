package kernel_test

import (
	"testing"

	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/tensor"
	"github.com/stretchr/testify/require"
)

func mustTensor(t *testing.T, data []float32, rows, cols int) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.From(data, tensor.Matrix(rows, cols))
	require.NoError(t, err)
	return tt
}

func TestTransposeScenario(t *testing.T) {
	x := mustTensor(t, []float32{1, 1, 1, 1, 0, 2, -1, 0}, 2, 4)
	y := mustTensor(t, make([]float32, 8), 4, 2)
	require.NoError(t, kernel.Transpose(x, y))
	require.Equal(t, []float32{1, 0, 1, 2, 1, -1, 1, 0}, y.Data())
}

func TestMultiplyMatrixMatrixScenario(t *testing.T) {
	x1 := mustTensor(t, []float32{1, 2, 3, 5, 0.1, -2}, 2, 3)
	x2 := mustTensor(t, []float32{
		5, 2, -1, 3,
		-5, 2, -7, 0.9,
		0.1, 0.2, -0.1, 2,
	}, 3, 4)
	y := mustTensor(t, make([]float32, 8), 2, 4)
	require.NoError(t, kernel.Multiply(x1, x2, y))

	want := []float32{-4.7, 6.6, -15.3, 10.8, 24.3, 9.7999, -5.5, 11.09}
	got := y.Data()
	for i, w := range want {
		require.InDeltaf(t, w, got[i], 1e-3, "index %d", i)
	}
}

func TestMultiplyVectorMatrixScenario(t *testing.T) {
	x1 := mustTensor(t, []float32{1, 2, 0.1, -2}, 1, 4)
	x2 := mustTensor(t, []float32{
		1, 1, 1, 1,
		0, 2, -1, 0,
		1, 1, 1, 1,
		0, 0, -1, 1,
	}, 4, 4)
	y := mustTensor(t, make([]float32, 4), 1, 4)
	require.NoError(t, kernel.Multiply(x1, x2, y))

	want := []float32{1.1, 5.1, 1.1, -0.9}
	got := y.Data()
	for i, w := range want {
		require.InDeltaf(t, w, got[i], 1e-3, "index %d", i)
	}
}

func TestMultiplyTransposedBMatchesMultiplyOfExplicitTranspose(t *testing.T) {
	a := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := mustTensor(t, []float32{1, 0, -1, 2, 1, 1}, 2, 3) // (2,3), so b^T is (3,2)

	bt := mustTensor(t, make([]float32, 6), 3, 2)
	require.NoError(t, kernel.Transpose(b, bt))

	want := mustTensor(t, make([]float32, 4), 2, 2)
	require.NoError(t, kernel.Multiply(a, bt, want))

	got := mustTensor(t, make([]float32, 4), 2, 2)
	require.NoError(t, kernel.MultiplyTransposedB(a, b, got))

	require.True(t, want.Equals(got))
}

func TestAddBiasBroadcastsPerRow(t *testing.T) {
	y := mustTensor(t, []float32{1, 2, 3, 4}, 2, 2)
	bias := mustTensor(t, []float32{10, 20}, 1, 2)
	require.NoError(t, kernel.AddBias(y, bias))
	require.Equal(t, []float32{11, 22, 13, 24}, y.Data())
}

func TestColumnSum(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 3, 2)
	out := mustTensor(t, make([]float32, 2), 1, 2)
	require.NoError(t, kernel.ColumnSum(x, out))
	require.Equal(t, []float32{9, 12}, out.Data())
}
