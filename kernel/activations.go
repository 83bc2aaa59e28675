package kernel

import (
	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/internal/workpool"
	"github.com/nnforge/gonn/tensor"
)

// Activation names the pointwise nonlinearity a node applies.
type Activation int

const (
	Identity Activation = iota
	Sigmoid
	Tanh
	ReLU
	LeakyReLU
	Softplus
	ELU
	LeCunTanh
)

const (
	leakyReLUSlope = 0.01
	eluAlpha       = 1.0
	lecunScaleA    = 1.7159
	lecunScaleB    = float32(2.0 / 3.0)
	expClamp       = 40.0
)

// ActivationForward computes y = f(x) elementwise for the named activation.
func ActivationForward(act Activation, x, y *tensor.Tensor) error {
	if err := sameShape("ActivationForward", x, y); err != nil {
		return err
	}
	xd, yd := x.Data(), y.Data()
	f, ok := forwardFns[act]
	if !ok {
		return errs.New(errs.InvalidArgument, pkg+".ActivationForward", "unknown activation %d", act)
	}
	return workpool.Run(len(xd), func(start, end int) error {
		for i := start; i < end; i++ {
			yd[i] = f(xd[i])
		}
		return nil
	})
}

// ActivationBackward computes dx = dy * f'(y), where y is the activation's
// own forward output (the standard convention for sigmoid/tanh-family
// derivatives expressed in terms of the output rather than the input).
func ActivationBackward(act Activation, y, dy, dx *tensor.Tensor) error {
	if err := sameShape("ActivationBackward", y, dy, dx); err != nil {
		return err
	}
	yd, dyd, dxd := y.Data(), dy.Data(), dx.Data()
	g, ok := backwardFns[act]
	if !ok {
		return errs.New(errs.InvalidArgument, pkg+".ActivationBackward", "unknown activation %d", act)
	}
	return workpool.Run(len(yd), func(start, end int) error {
		for i := start; i < end; i++ {
			dxd[i] = dyd[i] * g(yd[i])
		}
		return nil
	})
}

var forwardFns = map[Activation]func(float32) float32{
	Identity:  func(x float32) float32 { return x },
	Sigmoid:   sigmoidForward,
	Tanh:      math32.Tanh,
	ReLU:      func(x float32) float32 { return max32(0, x) },
	LeakyReLU: func(x float32) float32 { if x > 0 { return x }; return leakyReLUSlope * x },
	Softplus:  softplusForward,
	ELU:       eluForward,
	LeCunTanh: lecunTanhForward,
}

// backwardFns map y (the node's own output) to f'(y). ReLU/LeakyReLU/ELU
// require the output's sign, which is sufficient to recover the branch
// since these functions are monotonic.
var backwardFns = map[Activation]func(float32) float32{
	Identity:  func(y float32) float32 { return 1 },
	Sigmoid:   func(y float32) float32 { return y * (1 - y) },
	Tanh:      func(y float32) float32 { return 1 - y*y },
	ReLU:      func(y float32) float32 { if y > 0 { return 1 }; return 0 },
	LeakyReLU: func(y float32) float32 { if y > 0 { return 1 }; return leakyReLUSlope },
	Softplus:  func(y float32) float32 { return 1 - math32.Exp(-y) },
	ELU:       func(y float32) float32 { if y > 0 { return 1 }; return y + eluAlpha },
	LeCunTanh: lecunTanhDerivative,
}

func sigmoidForward(x float32) float32 {
	if -x > expClamp {
		return 0
	}
	if -x < -expClamp {
		return 1
	}
	return 1.0 / (1.0 + math32.Exp(-x))
}

func softplusForward(x float32) float32 {
	if x > expClamp {
		return x
	}
	return math32.Log(1 + math32.Exp(x))
}

func eluForward(x float32) float32 {
	if x > 0 {
		return x
	}
	return eluAlpha * (math32.Exp(x) - 1)
}

func lecunTanhForward(x float32) float32 {
	return lecunScaleA * math32.Tanh(lecunScaleB*x)
}

func lecunTanhDerivative(y float32) float32 {
	// y = A*tanh(Bx) => dy/dx = A*B*(1 - tanh(Bx)^2) = A*B*(1 - (y/A)^2)
	t := y / lecunScaleA
	return lecunScaleA * lecunScaleB * (1 - t*t)
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
