package kernel

import (
	"github.com/nnforge/gonn/internal/rng"
	"github.com/nnforge/gonn/tensor"
)

// DropoutForward samples a keep-mask with the given keep-probability
// and scales surviving activations by 1/keepProb (inverted dropout).
// In inference mode (training == false) it is the identity function:
// no masking, no scaling, and mask is left untouched (see §9, Design
// Notes, for the decision to separate train/inference behavior).
func DropoutForward(x, y *tensor.Tensor, mask []float32, keepProb float32, training bool, source *rng.Source) error {
	if err := sameShape("DropoutForward", x, y); err != nil {
		return err
	}
	xd, yd := x.Data(), y.Data()
	if !training {
		copy(yd, xd)
		return nil
	}
	inv := 1.0 / keepProb
	for i, v := range xd {
		if source.Float32() < keepProb {
			mask[i] = inv
			yd[i] = v * inv
		} else {
			mask[i] = 0
			yd[i] = 0
		}
	}
	return nil
}

// DropoutBackward multiplies dy by the mask DropoutForward produced.
func DropoutBackward(dy, dx *tensor.Tensor, mask []float32) error {
	if err := sameShape("DropoutBackward", dy, dx); err != nil {
		return err
	}
	dyd, dxd := dy.Data(), dx.Data()
	for i, m := range mask {
		dxd[i] = dyd[i] * m
	}
	return nil
}
