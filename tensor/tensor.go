// Package tensor implements the rank-4 NCHW tensor abstraction: a
// pooled float32 buffer with shape, reshape-as-view, and explicit
// release. Grounded on the teacher's pkg/core/math/tensor/tensor.go
// (shape/type plumbing) and x/math/tensor/eager_tensor/tensor.go
// (release/reshape/view semantics: only a contiguous, zero-offset
// owner may return its buffer to the pool).
package tensor

import (
	"math"

	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/internal/pool"
)

// Mode controls whether New zero-fills the allocated buffer.
type Mode int

const (
	// Default leaves the buffer's contents unspecified.
	Default Mode = iota
	// Clean zero-fills the buffer.
	Clean
)

// Tensor is a fixed-shape float32 buffer drawn from the module's
// pooled allocator. Only the owning handle's Release call returns the
// buffer to the pool; views created by Reshape are non-owning and
// Release on them is a no-op.
type Tensor struct {
	shape Shape
	data  []float32
	owns  bool
	pool  *pool.FloatPool
}

const op = "tensor"

func validateShape(fn string, shape Shape) error {
	if !shape.Valid() || shape.N < 0 {
		return errs.New(errs.InvalidArgument, op+"."+fn, "invalid shape %s", shape)
	}
	return nil
}

// New allocates a tensor of the given shape from the default pool.
func New(shape Shape, mode Mode) (*Tensor, error) {
	return NewFrom(pool.Default, shape, mode)
}

// NewFrom allocates a tensor from an explicit pool, for callers that
// want an isolated allocator (e.g. tests, or per-worker pools).
func NewFrom(p *pool.FloatPool, shape Shape, mode Mode) (*Tensor, error) {
	if err := validateShape("New", shape); err != nil {
		return nil, err
	}
	var data []float32
	if mode == Clean {
		data = p.GetZeroed(shape.Size())
	} else {
		data = p.Get(shape.Size())
	}
	return &Tensor{shape: shape, data: data, owns: true, pool: p}, nil
}

// Like allocates a tensor with the same shape as src.
func Like(src *Tensor, mode Mode) (*Tensor, error) {
	return NewFrom(src.pool, src.shape, mode)
}

// From copies data into a newly allocated tensor of the given shape.
// len(data) must equal shape.Size().
func From(data []float32, shape Shape) (*Tensor, error) {
	if err := validateShape("From", shape); err != nil {
		return nil, err
	}
	if len(data) != shape.Size() {
		return nil, errs.New(errs.ShapeMismatch, op+".From", "data length %d does not match shape %s (%d)", len(data), shape, shape.Size())
	}
	t, err := NewFrom(pool.Default, shape, Default)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// View wraps an externally managed slice as a non-owning tensor: no
// pool allocation occurs and Release is a no-op, matching the view
// semantics Reshape produces. Used for long-lived buffers a caller
// owns outside the tensor/pool lifecycle (e.g. batch-norm running
// statistics kept on a graph node across training calls).
func View(data []float32, shape Shape) (*Tensor, error) {
	if err := validateShape("View", shape); err != nil {
		return nil, err
	}
	if len(data) != shape.Size() {
		return nil, errs.New(errs.ShapeMismatch, op+".View", "data length %d does not match shape %s (%d)", len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape, data: data, owns: false, pool: nil}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// Data returns the tensor's backing slice. Callers must not retain it
// past a Release call.
func (t *Tensor) Data() []float32 { return t.data }

// Reshape returns a new, non-owning view over the same storage with a
// different shape. The total element count must be unchanged.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if !shape.Valid() {
		return nil, errs.New(errs.InvalidArgument, op+".Reshape", "invalid shape %s", shape)
	}
	if shape.Size() != len(t.data) {
		return nil, errs.New(errs.ShapeMismatch, op+".Reshape", "cannot reshape %s (%d elements) to %s (%d elements)", t.shape, len(t.data), shape, shape.Size())
	}
	return &Tensor{shape: shape, data: t.data, owns: false, pool: t.pool}, nil
}

// Overwrite copies src's contents into t. Shapes must match exactly.
func (t *Tensor) Overwrite(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return errs.New(errs.ShapeMismatch, op+".Overwrite", "shape %s does not match source shape %s", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// Duplicate returns a deep, owning copy of t.
func (t *Tensor) Duplicate() (*Tensor, error) {
	out, err := NewFrom(t.pool, t.shape, Default)
	if err != nil {
		return nil, err
	}
	copy(out.data, t.data)
	return out, nil
}

// Equals reports whether t and o share a shape and agree elementwise
// within an absolute tolerance of 1e-4.
func (t *Tensor) Equals(o *Tensor) bool {
	if o == nil || !t.shape.Equal(o.shape) {
		return false
	}
	const tol = 1e-4
	for i, v := range t.data {
		d := float64(v - o.data[i])
		if math.Abs(d) > tol {
			return false
		}
	}
	return true
}

// Release returns the backing buffer to its pool. It is a no-op on a
// non-owning view (created by Reshape) and idempotent on repeated
// calls to the same handle.
func (t *Tensor) Release() {
	if t == nil || !t.owns || t.data == nil {
		return
	}
	t.pool.Put(t.data)
	t.data = nil
	t.owns = false
}
