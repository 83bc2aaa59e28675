package errs_test

import (
	"errors"
	"testing"

	"github.com/nnforge/gonn/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndIs(t *testing.T) {
	err := errs.New(errs.ShapeMismatch, "kernel.Conv2DForward", "expected channels %d, got %d", 3, 4)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ShapeMismatch))
	assert.False(t, errs.Is(err, errs.InvalidArgument))
	assert.Contains(t, err.Error(), "kernel.Conv2DForward")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, errs.Wrap(errs.IOError, "dataset.Load", nil))
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := errs.Wrap(errs.ResourceExhausted, "pool.Get", base)
	assert.ErrorIs(t, err, base)
}
