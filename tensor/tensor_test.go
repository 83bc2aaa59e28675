package tensor_test

import (
	"testing"

	"github.com/nnforge/gonn/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCleanIsZeroed(t *testing.T) {
	tt, err := tensor.New(tensor.Shape{N: 1, C: 2, H: 2, W: 2}, tensor.Clean)
	require.NoError(t, err)
	for _, v := range tt.Data() {
		assert.Equal(t, float32(0), v)
	}
}

func TestFromAndEquals(t *testing.T) {
	a, err := tensor.From([]float32{1, 2, 3, 4}, tensor.Shape{N: 1, C: 1, H: 1, W: 4})
	require.NoError(t, err)
	b, err := tensor.From([]float32{1, 2, 3, 4}, tensor.Shape{N: 1, C: 1, H: 1, W: 4})
	require.NoError(t, err)
	assert.True(t, a.Equals(b))

	c, err := tensor.From([]float32{1, 2, 3, 4.001}, tensor.Shape{N: 1, C: 1, H: 1, W: 4})
	require.NoError(t, err)
	assert.False(t, a.Equals(c))
}

func TestFromRejectsLengthMismatch(t *testing.T) {
	_, err := tensor.From([]float32{1, 2, 3}, tensor.Shape{N: 1, C: 1, H: 1, W: 4})
	require.Error(t, err)
}

func TestReshapeIsView(t *testing.T) {
	a, err := tensor.From([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{N: 1, C: 1, H: 2, W: 3})
	require.NoError(t, err)
	v, err := a.Reshape(tensor.Shape{N: 1, C: 1, H: 3, W: 2})
	require.NoError(t, err)
	assert.Equal(t, a.Data(), v.Data())

	// Releasing the view must not free the owning tensor's buffer.
	v.Release()
	assert.Equal(t, float32(1), a.Data()[0])
}

func TestReshapeRejectsSizeChange(t *testing.T) {
	a, err := tensor.New(tensor.Shape{N: 1, C: 1, H: 2, W: 3}, tensor.Default)
	require.NoError(t, err)
	_, err = a.Reshape(tensor.Shape{N: 1, C: 1, H: 2, W: 2})
	assert.Error(t, err)
}

func TestOverwriteRequiresMatchingShape(t *testing.T) {
	a, err := tensor.New(tensor.Shape{N: 1, C: 1, H: 1, W: 2}, tensor.Clean)
	require.NoError(t, err)
	b, err := tensor.New(tensor.Shape{N: 1, C: 1, H: 1, W: 3}, tensor.Clean)
	require.NoError(t, err)
	assert.Error(t, a.Overwrite(b))
}

func TestDuplicateIsIndependent(t *testing.T) {
	a, err := tensor.From([]float32{1, 2}, tensor.Shape{N: 1, C: 1, H: 1, W: 2})
	require.NoError(t, err)
	d, err := a.Duplicate()
	require.NoError(t, err)
	d.Data()[0] = 99
	assert.Equal(t, float32(1), a.Data()[0])
}

func TestReleaseIsIdempotent(t *testing.T) {
	a, err := tensor.New(tensor.Shape{N: 1, C: 1, H: 1, W: 4}, tensor.Default)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		a.Release()
		a.Release()
	})
}

func TestViewWrapsExternalSliceWithoutCopying(t *testing.T) {
	backing := []float32{1, 2, 3, 4}
	v, err := tensor.View(backing, tensor.Shape{N: 1, C: 1, H: 1, W: 4})
	require.NoError(t, err)
	v.Data()[0] = 99
	assert.Equal(t, float32(99), backing[0])

	// Release on a view must not zero or recycle the caller's slice.
	v.Release()
	assert.Equal(t, float32(99), backing[0])
}

func TestViewRejectsLengthMismatch(t *testing.T) {
	_, err := tensor.View([]float32{1, 2, 3}, tensor.Shape{N: 1, C: 1, H: 1, W: 4})
	assert.Error(t, err)
}

func TestShapeHelpers(t *testing.T) {
	s := tensor.Shape{N: 2, C: 3, H: 4, W: 5}
	assert.Equal(t, 60, s.CHW())
	assert.Equal(t, 20, s.HW())
	assert.Equal(t, 120, s.Size())
	assert.True(t, s.Valid())
	assert.True(t, s.WithN(-1).Valid())
}
