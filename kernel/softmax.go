package kernel

import (
	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/internal/workpool"
	"github.com/nnforge/gonn/tensor"
)

// SoftmaxForward applies row-wise softmax: for each sample (row), shift
// by the row max, exponentiate, and normalize. Grounded on the
// teacher's Softmax2DCols (per-row softmax over the feature axis).
func SoftmaxForward(x, y *tensor.Tensor) error {
	if err := sameShape("SoftmaxForward", x, y); err != nil {
		return err
	}
	rows := x.Shape().N
	cols := x.Shape().CHW()
	xd, yd := x.Data(), y.Data()
	return workpool.Run(rows, func(start, end int) error {
		for i := start; i < end; i++ {
			p := i * cols
			row := xd[p : p+cols]
			out := yd[p : p+cols]

			maxVal := row[0]
			for _, v := range row[1:] {
				if v > maxVal {
					maxVal = v
				}
			}
			var sum float32
			for j, v := range row {
				e := math32.Exp(v - maxVal)
				out[j] = e
				sum += e
			}
			if sum > 0 {
				inv := 1.0 / sum
				for j := range out {
					out[j] *= inv
				}
			}
		}
		return nil
	})
}

// SoftmaxCrossEntropyGradient computes the combined softmax+log-likelihood
// gradient dx = yHat - y, valid because softmax is only ever used paired
// with a log-likelihood/cross-entropy output cost in this engine.
func SoftmaxCrossEntropyGradient(yHat, y, dx *tensor.Tensor) error {
	return Subtract(yHat, y, dx)
}
