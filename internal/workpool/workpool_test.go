package workpool_test

import (
	"sync/atomic"
	"testing"

	"github.com/nnforge/gonn/internal/workpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCoversAllIndices(t *testing.T) {
	const total = 97
	var seen [total]int32
	p := workpool.New(8)
	err := p.Run(total, func(start, end int) error {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		return nil
	})
	require.NoError(t, err)
	for i, v := range seen {
		assert.Equalf(t, int32(1), v, "index %d visited %d times", i, v)
	}
}

func TestRunZeroTotalNoop(t *testing.T) {
	p := workpool.New(4)
	called := false
	err := p.Run(0, func(start, end int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunPropagatesFirstError(t *testing.T) {
	p := workpool.New(4)
	sentinel := assertErr{}
	err := p.Run(10, func(start, end int) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
