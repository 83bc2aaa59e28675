package kernel

import (
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/internal/workpool"
	"github.com/nnforge/gonn/tensor"
)

// MaxPool2DOutputShape halves H and W; both must be even.
func MaxPool2DOutputShape(in tensor.Shape) (tensor.Shape, error) {
	if in.H%2 != 0 || in.W%2 != 0 {
		return tensor.Shape{}, errs.New(errs.InvalidArgument, pkg+".MaxPool2DOutputShape", "height/width must be even, got %s", in)
	}
	return tensor.Shape{N: in.N, C: in.C, H: in.H / 2, W: in.W / 2}, nil
}

// MaxPool2DForward applies 2x2, stride-2 max pooling, writing the
// flat index into x of the selected element into argmax for use by
// MaxPool2DBackward. Each window is scanned row-major and ties resolve
// to the first position encountered.
func MaxPool2DForward(x, y *tensor.Tensor, argmax []int) error {
	n, c, h, w := x.Shape().N, x.Shape().C, x.Shape().H, x.Shape().W
	want, err := MaxPool2DOutputShape(x.Shape())
	if err != nil {
		return err
	}
	if !y.Shape().Equal(want) {
		return errs.New(errs.ShapeMismatch, pkg+".MaxPool2DForward", "output shape %s does not match expected %s", y.Shape(), want)
	}
	oh, ow := want.H, want.W
	if len(argmax) != n*c*oh*ow {
		return errs.New(errs.ShapeMismatch, pkg+".MaxPool2DForward", "argmax buffer length %d does not match output size %d", len(argmax), n*c*oh*ow)
	}
	xd, yd := x.Data(), y.Data()

	return workpool.Run(n, func(start, end int) error {
		for ni := start; ni < end; ni++ {
			for ci := 0; ci < c; ci++ {
				for oi := 0; oi < oh; oi++ {
					for oj := 0; oj < ow; oj++ {
						bestIdx := -1
						var bestVal float32
						for di := 0; di < 2; di++ {
							for dj := 0; dj < 2; dj++ {
								ii := oi*2 + di
								jj := oj*2 + dj
								idx := ((ni*c+ci)*h+ii)*w + jj
								v := xd[idx]
								if bestIdx == -1 || v > bestVal {
									bestVal = v
									bestIdx = idx
								}
							}
						}
						outIdx := ((ni*c+ci)*oh+oi)*ow + oj
						yd[outIdx] = bestVal
						argmax[outIdx] = bestIdx
					}
				}
			}
		}
		return nil
	})
}

// MaxPool2DBackward routes dy to the position recorded in argmax by
// the matching forward call; every other input position receives a
// zero gradient.
func MaxPool2DBackward(dy *tensor.Tensor, argmax []int, dx *tensor.Tensor) error {
	if len(argmax) != len(dy.Data()) {
		return errs.New(errs.ShapeMismatch, pkg+".MaxPool2DBackward", "argmax length %d does not match dy size %d", len(argmax), len(dy.Data()))
	}
	dyd, dxd := dy.Data(), dx.Data()
	for i := range dxd {
		dxd[i] = 0
	}
	for i, idx := range argmax {
		dxd[idx] += dyd[i]
	}
	return nil
}
