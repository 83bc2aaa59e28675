package optim

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/errs"
)

// AdaGrad accumulates squared gradients and scales the learning rate
// per parameter by their inverse square root: s += g^2;
// data -= lr*g/(sqrt(s)+eps).
type AdaGrad struct {
	lr, epsilon float32
	state       map[uintptr][]float32
	guard       sync.Mutex
}

// NewAdaGrad builds an AdaGrad optimizer. lr and epsilon must be positive.
func NewAdaGrad(lr, epsilon float32) (*AdaGrad, error) {
	if lr <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdaGrad", "learning rate must be positive, got %f", lr)
	}
	if epsilon <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdaGrad", "epsilon must be positive, got %f", epsilon)
	}
	return &AdaGrad{lr: lr, epsilon: epsilon, state: make(map[uintptr][]float32)}, nil
}

func (a *AdaGrad) Update(p *Parameter) error {
	skip, err := validate(pkg+".AdaGrad.Update", p)
	if err != nil || skip {
		return err
	}
	data, grad := p.Data.Data(), p.Grad.Data()

	a.guard.Lock()
	key := paramKey(p)
	s, ok := a.state[key]
	if !ok {
		s = make([]float32, len(data))
		a.state[key] = s
	}
	a.guard.Unlock()

	for i := range data {
		g := grad[i]
		s[i] += g * g
		data[i] -= a.lr * g / (math32.Sqrt(s[i]) + a.epsilon)
	}
	return nil
}
