package pool_test

import (
	"testing"

	"github.com/nnforge/gonn/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsRequestedLength(t *testing.T) {
	p := pool.New()
	buf := p.Get(10)
	require.Len(t, buf, 10)
}

func TestPutGetReusesCapacity(t *testing.T) {
	p := pool.New()
	buf := p.Get(20)
	for i := range buf {
		buf[i] = 1
	}
	p.Put(buf)

	reused := p.Get(18)
	require.Len(t, reused, 18)
	// Capacity tier should be shared; cannot assert aliasing directly
	// (sync.Pool offers no such guarantee), only that lengths are sane.
	assert.GreaterOrEqual(t, cap(reused), 18)
}

func TestGetZeroedIsZero(t *testing.T) {
	p := pool.New()
	buf := p.Get(8)
	for i := range buf {
		buf[i] = 42
	}
	p.Put(buf)

	z := p.GetZeroed(8)
	for _, v := range z {
		assert.Equal(t, float32(0), v)
	}
}

func TestNewRejectsBadTiers(t *testing.T) {
	assert.Panics(t, func() { pool.New(0) })
	assert.Panics(t, func() { pool.New(16, 8) })
}

func TestLargeRequestBeyondTiers(t *testing.T) {
	p := pool.New(16, 32)
	buf := p.Get(1000)
	require.Len(t, buf, 1000)
	p.Put(buf)
}
