package optim

import "github.com/nnforge/gonn/errs"

// SGD implements plain stochastic gradient descent, with optional L2
// weight decay. Grounded on pkg/core/math/learn/optimizer.go's SGD.
type SGD struct {
	lr float32
	l2 float32
}

// NewSGD builds an SGD optimizer. lr must be positive; l2 (weight
// decay) must lie in [0,1).
func NewSGD(lr float32, l2 float32) (*SGD, error) {
	if lr <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewSGD", "learning rate must be positive, got %f", lr)
	}
	if l2 < 0 || l2 >= 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewSGD", "l2 must be in [0,1), got %f", l2)
	}
	return &SGD{lr: lr, l2: l2}, nil
}

// Update applies data -= lr*grad (+ lr*l2*data for weight decay).
func (s *SGD) Update(p *Parameter) error {
	skip, err := validate(pkg+".SGD.Update", p)
	if err != nil || skip {
		return err
	}
	data, grad := p.Data.Data(), p.Grad.Data()
	if s.l2 == 0 {
		for i := range data {
			data[i] -= s.lr * grad[i]
		}
		return nil
	}
	for i := range data {
		data[i] -= s.lr * (grad[i] + s.l2*data[i])
	}
	return nil
}
