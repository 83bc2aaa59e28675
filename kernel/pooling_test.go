package kernel_test

import (
	"testing"

	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/tensor"
	"github.com/stretchr/testify/require"
)

func TestMaxPool2DScenario(t *testing.T) {
	x, err := tensor.From([]float32{
		-1, 0, 1, 2,
		1, 1, 1, 1,
		0, -0.3, -5, -0.5,
		-1, 10, -2, -1,
	}, tensor.Shape{N: 1, C: 1, H: 4, W: 4})
	require.NoError(t, err)

	shape, err := kernel.MaxPool2DOutputShape(x.Shape())
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{N: 1, C: 1, H: 2, W: 2}, shape)

	y, err := tensor.New(shape, tensor.Default)
	require.NoError(t, err)
	argmax := make([]int, shape.Size())
	require.NoError(t, kernel.MaxPool2DForward(x, y, argmax))

	require.Equal(t, []float32{1, 2, 10, -0.5}, y.Data())
}

func TestMaxPool2DBackwardRoutesToArgmax(t *testing.T) {
	x, err := tensor.From([]float32{
		1, 2,
		3, 4,
	}, tensor.Shape{N: 1, C: 1, H: 2, W: 2})
	require.NoError(t, err)
	y, err := tensor.New(tensor.Shape{N: 1, C: 1, H: 1, W: 1}, tensor.Default)
	require.NoError(t, err)
	argmax := make([]int, 1)
	require.NoError(t, kernel.MaxPool2DForward(x, y, argmax))
	require.Equal(t, float32(4), y.Data()[0])
	require.Equal(t, 3, argmax[0])

	dy, err := tensor.From([]float32{7}, tensor.Shape{N: 1, C: 1, H: 1, W: 1})
	require.NoError(t, err)
	dx, err := tensor.Like(x, tensor.Default)
	require.NoError(t, err)
	require.NoError(t, kernel.MaxPool2DBackward(dy, argmax, dx))
	require.Equal(t, []float32{0, 0, 0, 7}, dx.Data())
}

func TestMaxPool2DOutputShapeRejectsOddDimensions(t *testing.T) {
	_, err := kernel.MaxPool2DOutputShape(tensor.Shape{N: 1, C: 1, H: 3, W: 4})
	require.Error(t, err)
}
