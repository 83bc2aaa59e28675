// Package kernel implements the BLAS/DNN numeric kernels the graph
// nodes call into: matrix operations, activations, softmax,
// convolution, pooling, batch normalization, dropout, and cost
// functions, plus their backward-pass counterparts. Grounded on the
// teacher's pkg/core/math/primitive/fp32 (Gemm_NN/NT/TN family,
// activation loops, conv/pool loops) and pkg/core/math/nn/{nn.go,
// losses.go} (how those primitives compose into layer forward passes).
// Every N-axis loop is handed to internal/workpool for parallelism,
// per the concurrency model.
package kernel

import (
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/internal/workpool"
	"github.com/nnforge/gonn/tensor"
)

const pkg = "kernel"

// asMatrix validates that t's element layout matches (rows, cols) and
// returns its backing slice.
func asMatrix(t *tensor.Tensor, fn string, rows, cols int) ([]float32, error) {
	sh := t.Shape()
	if sh.N != rows || sh.CHW() != cols {
		return nil, errs.New(errs.ShapeMismatch, pkg+"."+fn, "expected (%d,%d), got %s", rows, cols, sh)
	}
	return t.Data(), nil
}

// Transpose writes x^T into y: x is (rows,cols), y is (cols,rows).
func Transpose(x, y *tensor.Tensor) error {
	rows := x.Shape().N
	cols := x.Shape().CHW()
	xd, err := asMatrix(x, "Transpose", rows, cols)
	if err != nil {
		return err
	}
	yd, err := asMatrix(y, "Transpose", cols, rows)
	if err != nil {
		return err
	}
	return workpool.Run(rows, func(start, end int) error {
		for i := start; i < end; i++ {
			for j := 0; j < cols; j++ {
				yd[j*rows+i] = xd[i*cols+j]
			}
		}
		return nil
	})
}

// Multiply computes y = x1 * x2 for x1 (M,K), x2 (K,N), y (M,N).
func Multiply(x1, x2, y *tensor.Tensor) error {
	m := x1.Shape().N
	k := x1.Shape().CHW()
	n := x2.Shape().CHW()
	if x2.Shape().N != k {
		return errs.New(errs.ShapeMismatch, pkg+".Multiply", "inner dimensions disagree: %s vs %s", x1.Shape(), x2.Shape())
	}
	a, err := asMatrix(x1, "Multiply", m, k)
	if err != nil {
		return err
	}
	b, err := asMatrix(x2, "Multiply", k, n)
	if err != nil {
		return err
	}
	c, err := asMatrix(y, "Multiply", m, n)
	if err != nil {
		return err
	}
	return workpool.Run(m, func(start, end int) error {
		for i := start; i < end; i++ {
			pa := i * k
			pc := i * n
			for j := 0; j < n; j++ {
				c[pc+j] = 0
			}
			for kk := 0; kk < k; kk++ {
				av := a[pa+kk]
				if av == 0 {
					continue
				}
				pb := kk * n
				for j := 0; j < n; j++ {
					c[pc+j] += av * b[pb+j]
				}
			}
		}
		return nil
	})
}

// MultiplyTransposedB computes y = x1 * x2^T for x1 (M,K), x2 (N,K), y (M,N).
// Used by fully-connected backward-data: dx = dy * W^T.
func MultiplyTransposedB(x1, x2, y *tensor.Tensor) error {
	m := x1.Shape().N
	k := x1.Shape().CHW()
	n := x2.Shape().N
	if x2.Shape().CHW() != k {
		return errs.New(errs.ShapeMismatch, pkg+".MultiplyTransposedB", "inner dimensions disagree: %s vs %s", x1.Shape(), x2.Shape())
	}
	a, err := asMatrix(x1, "MultiplyTransposedB", m, k)
	if err != nil {
		return err
	}
	b, err := asMatrix(x2, "MultiplyTransposedB", n, k)
	if err != nil {
		return err
	}
	c, err := asMatrix(y, "MultiplyTransposedB", m, n)
	if err != nil {
		return err
	}
	return workpool.Run(m, func(start, end int) error {
		for i := start; i < end; i++ {
			pa := i * k
			pc := i * n
			for j := 0; j < n; j++ {
				pb := j * k
				var sum float32
				for kk := 0; kk < k; kk++ {
					sum += a[pa+kk] * b[pb+kk]
				}
				c[pc+j] = sum
			}
		}
		return nil
	})
}

// MultiplyTransposedA computes y = x1^T * x2 for x1 (K,M), x2 (K,N), y (M,N).
// Used by fully-connected backward-filter: dJdw = x^T * dy.
func MultiplyTransposedA(x1, x2, y *tensor.Tensor) error {
	k := x1.Shape().N
	m := x1.Shape().CHW()
	n := x2.Shape().CHW()
	if x2.Shape().N != k {
		return errs.New(errs.ShapeMismatch, pkg+".MultiplyTransposedA", "inner dimensions disagree: %s vs %s", x1.Shape(), x2.Shape())
	}
	a, err := asMatrix(x1, "MultiplyTransposedA", k, m)
	if err != nil {
		return err
	}
	b, err := asMatrix(x2, "MultiplyTransposedA", k, n)
	if err != nil {
		return err
	}
	c, err := asMatrix(y, "MultiplyTransposedA", m, n)
	if err != nil {
		return err
	}
	for i := range c {
		c[i] = 0
	}
	// Accumulation over k cannot be split across workers without a
	// reduction step; split over the output's M axis instead.
	return workpool.Run(m, func(start, end int) error {
		for i := start; i < end; i++ {
			pc := i * n
			for kk := 0; kk < k; kk++ {
				av := a[kk*m+i]
				if av == 0 {
					continue
				}
				pb := kk * n
				for j := 0; j < n; j++ {
					c[pc+j] += av * b[pb+j]
				}
			}
		}
		return nil
	})
}

func sameShape(fn string, xs ...*tensor.Tensor) error {
	if len(xs) == 0 {
		return nil
	}
	want := xs[0].Shape()
	for _, x := range xs[1:] {
		if !x.Shape().Equal(want) {
			return errs.New(errs.ShapeMismatch, pkg+"."+fn, "shape %s does not match %s", x.Shape(), want)
		}
	}
	return nil
}

// MultiplyElementwise computes the Hadamard product y = x1 ⊙ x2.
func MultiplyElementwise(x1, x2, y *tensor.Tensor) error {
	if err := sameShape("MultiplyElementwise", x1, x2, y); err != nil {
		return err
	}
	a, b, c := x1.Data(), x2.Data(), y.Data()
	return workpool.Run(len(c), func(start, end int) error {
		for i := start; i < end; i++ {
			c[i] = a[i] * b[i]
		}
		return nil
	})
}

// Subtract computes y = x1 - x2.
func Subtract(x1, x2, y *tensor.Tensor) error {
	if err := sameShape("Subtract", x1, x2, y); err != nil {
		return err
	}
	a, b, c := x1.Data(), x2.Data(), y.Data()
	return workpool.Run(len(c), func(start, end int) error {
		for i := start; i < end; i++ {
			c[i] = a[i] - b[i]
		}
		return nil
	})
}

// Sum computes y = Σ xs elementwise. All tensors must share xs[0]'s shape.
func Sum(y *tensor.Tensor, xs ...*tensor.Tensor) error {
	if len(xs) == 0 {
		return errs.New(errs.InvalidArgument, pkg+".Sum", "no operands")
	}
	if err := sameShape("Sum", append([]*tensor.Tensor{y}, xs...)...); err != nil {
		return err
	}
	out := y.Data()
	return workpool.Run(len(out), func(start, end int) error {
		for i := start; i < end; i++ {
			var s float32
			for _, x := range xs {
				s += x.Data()[i]
			}
			out[i] = s
		}
		return nil
	})
}

// AddBias adds a length-cols bias vector to every row of a (rows,cols) tensor, in place.
func AddBias(y *tensor.Tensor, bias *tensor.Tensor) error {
	rows := y.Shape().N
	cols := y.Shape().CHW()
	if bias.Shape().CHW() != cols || bias.Shape().N != 1 {
		return errs.New(errs.ShapeMismatch, pkg+".AddBias", "bias shape %s does not match columns %d", bias.Shape(), cols)
	}
	yd, bd := y.Data(), bias.Data()
	return workpool.Run(rows, func(start, end int) error {
		for i := start; i < end; i++ {
			p := i * cols
			for j := 0; j < cols; j++ {
				yd[p+j] += bd[j]
			}
		}
		return nil
	})
}

// ColumnSum reduces a (rows,cols) tensor to a (1,cols) tensor by summing rows.
// Used by the fully-connected backward-bias kernel.
func ColumnSum(x, out *tensor.Tensor) error {
	rows := x.Shape().N
	cols := x.Shape().CHW()
	if out.Shape().N != 1 || out.Shape().CHW() != cols {
		return errs.New(errs.ShapeMismatch, pkg+".ColumnSum", "output shape %s does not match %d columns", out.Shape(), cols)
	}
	xd, od := x.Data(), out.Data()
	for j := 0; j < cols; j++ {
		od[j] = 0
	}
	for i := 0; i < rows; i++ {
		p := i * cols
		for j := 0; j < cols; j++ {
			od[j] += xd[p+j]
		}
	}
	return nil
}
