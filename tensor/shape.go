package tensor

import "fmt"

// Shape is a rank-4 NCHW tuple: sample count, channels, height, width.
// N may be -1 on a placeholder shape to mean "batch-flexible".
type Shape struct {
	N, C, H, W int
}

// CHW returns the per-sample element count (channels * height * width).
func (s Shape) CHW() int { return s.C * s.H * s.W }

// HW returns height * width.
func (s Shape) HW() int { return s.H * s.W }

// Size returns the total element count N*C*H*W. A flexible N (-1) is
// treated as 0 for sizing purposes; callers must resolve N before
// allocating.
func (s Shape) Size() int {
	if s.N < 0 {
		return 0
	}
	return s.N * s.CHW()
}

// Equal reports whether two shapes agree on every dimension.
func (s Shape) Equal(o Shape) bool {
	return s.N == o.N && s.C == o.C && s.H == o.H && s.W == o.W
}

// WithN returns a copy of s with the batch dimension replaced.
func (s Shape) WithN(n int) Shape {
	s.N = n
	return s
}

// Valid reports whether every dimension is positive (N may be -1 for
// a flexible placeholder shape, never 0 or less than -1).
func (s Shape) Valid() bool {
	if s.N != -1 && s.N <= 0 {
		return false
	}
	return s.C > 0 && s.H > 0 && s.W > 0
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", s.N, s.C, s.H, s.W)
}

// Matrix builds the flat (N, CHW) shape a matrix-style kernel expects.
func Matrix(n, chw int) Shape { return Shape{N: n, C: 1, H: 1, W: chw} }
