package optim

import (
	"sync"

	"github.com/nnforge/gonn/errs"
)

// Momentum implements classical (heavy-ball) momentum: v = mu*v - lr*grad;
// data += v. Newly written in the per-parameter-state idiom the
// teacher's Adam establishes in optimizer.go.
type Momentum struct {
	lr, mu float32
	state  map[uintptr][]float32
	guard  sync.Mutex
}

// NewMomentum builds a Momentum optimizer. lr must be positive, mu
// (the momentum coefficient) must lie in [0,1).
func NewMomentum(lr, mu float32) (*Momentum, error) {
	if lr <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewMomentum", "learning rate must be positive, got %f", lr)
	}
	if mu < 0 || mu >= 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewMomentum", "mu must be in [0,1), got %f", mu)
	}
	return &Momentum{lr: lr, mu: mu, state: make(map[uintptr][]float32)}, nil
}

func (m *Momentum) Update(p *Parameter) error {
	skip, err := validate(pkg+".Momentum.Update", p)
	if err != nil || skip {
		return err
	}
	data, grad := p.Data.Data(), p.Grad.Data()

	m.guard.Lock()
	key := paramKey(p)
	v, ok := m.state[key]
	if !ok {
		v = make([]float32, len(data))
		m.state[key] = v
	}
	m.guard.Unlock()

	for i := range data {
		v[i] = m.mu*v[i] - m.lr*grad[i]
		data[i] += v[i]
	}
	return nil
}
