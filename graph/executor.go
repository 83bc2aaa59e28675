package graph

import (
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/internal/obs"
	"github.com/nnforge/gonn/internal/rng"
	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/optim"
	"github.com/nnforge/gonn/tensor"
)

// Executor drives forward/backward traversal over a graph's arena.
// Grounded on pkg/core/math/nn/model.go's Forward/Backward pair,
// generalized from a linear layer slice to topological order over an
// arbitrary DAG, per Design Notes §9 (closure-based recursive walk
// replaced with a sealed Kind type switch for exhaustiveness).
type Executor struct {
	graph       *Graph
	order       []NodeID
	children    map[NodeID][]NodeID
	placeholder NodeID
	terminal    NodeID
	rngSource   *rng.Source
}

// Build assembles an Executor from terminal's reachable ancestry.
// Validates exactly one placeholder is reachable and that terminal is
// an Output-kind node.
func (g *Graph) Build(terminal NodeID) (*Executor, error) {
	term, err := g.node(terminal)
	if err != nil {
		return nil, err
	}
	if term.kind != KindOutput {
		return nil, errs.New(errs.InvalidArgument, pkg+".Build", "terminal node %d is not an Output node", terminal)
	}

	visited := make(map[NodeID]bool)
	var order []NodeID
	var placeholderID NodeID
	placeholderCount := 0

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		n, err := g.node(id)
		if err != nil {
			return err
		}
		for _, p := range n.parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		if n.kind == KindPlaceholder {
			placeholderID = id
			placeholderCount++
		}
		order = append(order, id)
		return nil
	}
	if err := visit(terminal); err != nil {
		return nil, err
	}
	if placeholderCount != 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".Build", "graph must have exactly one reachable placeholder, found %d", placeholderCount)
	}

	children := make(map[NodeID][]NodeID, len(order))
	for _, id := range order {
		n, _ := g.node(id)
		for _, p := range n.parents {
			children[p] = append(children[p], id)
		}
	}

	obs.Log.Debug().Int("nodes", len(order)).Msg("graph built")
	return &Executor{
		graph:       g,
		order:       order,
		children:    children,
		placeholder: placeholderID,
		terminal:    terminal,
		rngSource:   rng.NewThreadLocal(),
	}, nil
}

// Parameters returns every trainable parameter across the arena, in
// node order, for an optimizer loop to step over.
func (e *Executor) Parameters() []*optim.Parameter {
	var out []*optim.Parameter
	for _, id := range e.order {
		n, _ := e.graph.node(id)
		out = append(out, n.Parameters()...)
	}
	return out
}

type forwardScratch struct {
	argmax  map[NodeID][]int
	mask    map[NodeID][]float32
	bnCache map[NodeID]*kernel.BatchNormCache
}

// Forward maps the placeholder to x and evaluates the graph in
// topological order, releasing each intermediate tensor once its last
// consumer has run. The returned tensor is detached from internal
// bookkeeping; the caller owns it.
func (e *Executor) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	tensors, _, err := e.runForward(x, training, true)
	if err != nil {
		return nil, err
	}
	out := tensors[e.terminal]
	delete(tensors, e.terminal)
	return out, nil
}

// Loss evaluates Forward(x) then the terminal node's cost against y,
// releasing the forward output before returning.
func (e *Executor) Loss(x, y *tensor.Tensor, training bool) (float32, error) {
	yHat, err := e.Forward(x, training)
	if err != nil {
		return 0, err
	}
	defer yHat.Release()
	term, _ := e.graph.node(e.terminal)
	if term.softmax {
		return kernel.ComputeCost(kernel.LogLikelihood, yHat, y)
	}
	return kernel.ComputeCost(term.cost, yHat, y)
}

func (e *Executor) runForward(x *tensor.Tensor, training, release bool) (map[NodeID]*tensor.Tensor, *forwardScratch, error) {
	placeholderNode, _ := e.graph.node(e.placeholder)
	if !x.Shape().Equal(placeholderNode.shape) {
		return nil, nil, errs.New(errs.ShapeMismatch, pkg+".Forward", "input shape %s does not match placeholder %s", x.Shape(), placeholderNode.shape)
	}

	tensors := make(map[NodeID]*tensor.Tensor, len(e.order))
	scratch := &forwardScratch{
		argmax:  make(map[NodeID][]int),
		mask:    make(map[NodeID][]float32),
		bnCache: make(map[NodeID]*kernel.BatchNormCache),
	}
	remaining := make(map[NodeID]int, len(e.order))
	for id, ch := range e.children {
		remaining[id] = len(ch)
	}

	release1 := func(id NodeID, n *Node) {
		if !release {
			return
		}
		for _, p := range n.parents {
			remaining[p]--
			if remaining[p] > 0 || p == e.terminal {
				continue
			}
			pn, _ := e.graph.node(p)
			if pn.kind == KindPlaceholder {
				delete(tensors, p)
				continue
			}
			if t, ok := tensors[p]; ok {
				t.Release()
				delete(tensors, p)
			}
		}
	}

	for _, id := range e.order {
		n, _ := e.graph.node(id)
		switch n.kind {
		case KindPlaceholder:
			tensors[id] = x
			continue
		case KindFullyConnected:
			parent := tensors[n.parents[0]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			if err := kernel.Multiply(parent, n.weights.Data, y); err != nil {
				return nil, nil, err
			}
			if err := kernel.AddBias(y, n.bias.Data); err != nil {
				return nil, nil, err
			}
			tensors[id] = y
		case KindConvolution:
			parent := tensors[n.parents[0]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			if err := kernel.Conv2DForward(parent, n.weights.Data, n.bias.Data, y); err != nil {
				return nil, nil, err
			}
			tensors[id] = y
		case KindPooling:
			parent := tensors[n.parents[0]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			argmax := make([]int, n.shape.Size())
			if err := kernel.MaxPool2DForward(parent, y, argmax); err != nil {
				return nil, nil, err
			}
			scratch.argmax[id] = argmax
			tensors[id] = y
		case KindActivation:
			parent := tensors[n.parents[0]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			if err := kernel.ActivationForward(n.activation, parent, y); err != nil {
				return nil, nil, err
			}
			tensors[id] = y
		case KindBatchNorm:
			parent := tensors[n.parents[0]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			rm, err := tensor.View(n.runningMean, tensor.Matrix(1, len(n.runningMean)))
			if err != nil {
				return nil, nil, err
			}
			rv, err := tensor.View(n.runningVariance, tensor.Matrix(1, len(n.runningVariance)))
			if err != nil {
				return nil, nil, err
			}
			cache, err := kernel.BatchNormForward(n.bnMode, parent, n.gamma.Data, n.beta.Data, rm, rv, y, training, &n.bnIteration)
			if err != nil {
				return nil, nil, err
			}
			if cache != nil {
				scratch.bnCache[id] = cache
			}
			tensors[id] = y
		case KindDropout:
			parent := tensors[n.parents[0]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			mask := make([]float32, n.shape.Size())
			if err := kernel.DropoutForward(parent, y, mask, n.keepProb, training, e.rngSource); err != nil {
				return nil, nil, err
			}
			scratch.mask[id] = mask
			tensors[id] = y
		case KindSum:
			a, b := tensors[n.parents[0]], tensors[n.parents[1]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			if err := kernel.Sum(y, a, b); err != nil {
				return nil, nil, err
			}
			tensors[id] = y
		case KindDepthConcat:
			a, b := tensors[n.parents[0]], tensors[n.parents[1]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			if err := depthConcat(a, b, y); err != nil {
				return nil, nil, err
			}
			tensors[id] = y
		case KindOutput:
			parent := tensors[n.parents[0]]
			y, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, nil, err
			}
			if n.softmax {
				z, err := tensor.New(n.shape, tensor.Clean)
				if err != nil {
					return nil, nil, err
				}
				if err := kernel.Multiply(parent, n.weights.Data, z); err != nil {
					return nil, nil, err
				}
				if err := kernel.AddBias(z, n.bias.Data); err != nil {
					return nil, nil, err
				}
				err = kernel.SoftmaxForward(z, y)
				z.Release()
				if err != nil {
					return nil, nil, err
				}
			} else {
				if err := kernel.ActivationForward(n.activation, parent, y); err != nil {
					return nil, nil, err
				}
			}
			tensors[id] = y
		default:
			return nil, nil, errs.New(errs.InvalidArgument, pkg+".Forward", "unknown node kind %d", n.kind)
		}
		release1(id, n)
	}
	return tensors, scratch, nil
}

func depthConcat(a, b, y *tensor.Tensor) error {
	ash, bsh := a.Shape(), b.Shape()
	ad, bd, yd := a.Data(), b.Data(), y.Data()
	hw := ash.HW()
	n := ash.N
	for ni := 0; ni < n; ni++ {
		yBase := ni * (ash.C + bsh.C) * hw
		copy(yd[yBase:yBase+ash.C*hw], ad[ni*ash.C*hw:(ni+1)*ash.C*hw])
		copy(yd[yBase+ash.C*hw:yBase+(ash.C+bsh.C)*hw], bd[ni*bsh.C*hw:(ni+1)*bsh.C*hw])
	}
	return nil
}

func depthSplit(dy, da, db *tensor.Tensor) error {
	ash, bsh := da.Shape(), db.Shape()
	dyd, dad, dbd := dy.Data(), da.Data(), db.Data()
	hw := ash.HW()
	n := ash.N
	for ni := 0; ni < n; ni++ {
		yBase := ni * (ash.C + bsh.C) * hw
		copy(dad[ni*ash.C*hw:(ni+1)*ash.C*hw], dyd[yBase:yBase+ash.C*hw])
		copy(dbd[ni*bsh.C*hw:(ni+1)*bsh.C*hw], dyd[yBase+ash.C*hw:yBase+(ash.C+bsh.C)*hw])
	}
	return nil
}

func addGrad(dMap map[NodeID]*tensor.Tensor, id NodeID, contribution *tensor.Tensor) error {
	existing, ok := dMap[id]
	if !ok {
		dMap[id] = contribution
		return nil
	}
	merged, err := tensor.New(existing.Shape(), tensor.Clean)
	if err != nil {
		return err
	}
	if err := kernel.Sum(merged, existing, contribution); err != nil {
		return err
	}
	existing.Release()
	contribution.Release()
	dMap[id] = merged
	return nil
}

// Backward performs a retained forward pass, then traverses in reverse
// topological order computing dJdw/dJdb for every weighted node.
// Returns the weighted nodes' trainable parameters, already holding
// the freshly computed gradients, keyed by node id.
func (e *Executor) Backward(x, y *tensor.Tensor) (map[NodeID][]*optim.Parameter, error) {
	tensors, scratch, err := e.runForward(x, true, false)
	if err != nil {
		return nil, err
	}

	dMap := make(map[NodeID]*tensor.Tensor, len(e.order))

	for i := len(e.order) - 1; i >= 0; i-- {
		id := e.order[i]
		n, _ := e.graph.node(id)

		if n.kind == KindPlaceholder {
			if d, ok := dMap[id]; ok {
				d.Release()
				delete(dMap, id)
			}
			continue
		}

		if n.kind == KindOutput {
			yHat := tensors[id]
			parentShape := mustShape(e.graph, n.parents[0])
			if n.softmax {
				parent := tensors[n.parents[0]]
				dz, err := tensor.New(n.shape, tensor.Clean)
				if err != nil {
					return nil, err
				}
				if err := kernel.SoftmaxCrossEntropyGradient(yHat, y, dz); err != nil {
					return nil, err
				}
				if err := kernel.MultiplyTransposedA(parent, dz, n.weights.Grad); err != nil {
					return nil, err
				}
				if err := kernel.ColumnSum(dz, n.bias.Grad); err != nil {
					return nil, err
				}
				dParent, err := tensor.New(parentShape, tensor.Clean)
				if err != nil {
					return nil, err
				}
				if err := kernel.MultiplyTransposedB(dz, n.weights.Data, dParent); err != nil {
					return nil, err
				}
				dz.Release()
				if err := addGrad(dMap, n.parents[0], dParent); err != nil {
					return nil, err
				}
			} else {
				dParent, err := tensor.New(parentShape, tensor.Clean)
				if err != nil {
					return nil, err
				}
				dyHat, err := tensor.New(n.shape, tensor.Clean)
				if err != nil {
					return nil, err
				}
				if err := kernel.CostGradient(n.cost, yHat, y, dyHat); err != nil {
					return nil, err
				}
				if n.cost == kernel.CrossEntropy {
					copy(dParent.Data(), dyHat.Data())
				} else if err := kernel.ActivationBackward(n.activation, yHat, dyHat, dParent); err != nil {
					return nil, err
				}
				dyHat.Release()
				if err := addGrad(dMap, n.parents[0], dParent); err != nil {
					return nil, err
				}
			}
			yHat.Release()
			delete(tensors, id)
			continue
		}

		dOut := dMap[id]
		delete(dMap, id)

		switch n.kind {
		case KindFullyConnected:
			parent := tensors[n.parents[0]]
			if err := kernel.MultiplyTransposedA(parent, dOut, n.weights.Grad); err != nil {
				return nil, err
			}
			if err := kernel.ColumnSum(dOut, n.bias.Grad); err != nil {
				return nil, err
			}
			dx, err := tensor.New(parent.Shape(), tensor.Clean)
			if err != nil {
				return nil, err
			}
			if err := kernel.MultiplyTransposedB(dOut, n.weights.Data, dx); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[0], dx); err != nil {
				return nil, err
			}
		case KindConvolution:
			parent := tensors[n.parents[0]]
			if err := kernel.Conv2DBackwardFilter(parent, dOut, n.weights.Grad); err != nil {
				return nil, err
			}
			if err := kernel.Conv2DBackwardBias(dOut, n.bias.Grad); err != nil {
				return nil, err
			}
			dx, err := tensor.New(parent.Shape(), tensor.Clean)
			if err != nil {
				return nil, err
			}
			if err := kernel.Conv2DBackwardData(dOut, n.weights.Data, dx); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[0], dx); err != nil {
				return nil, err
			}
		case KindPooling:
			parentShape := mustShape(e.graph, n.parents[0])
			dx, err := tensor.New(parentShape, tensor.Clean)
			if err != nil {
				return nil, err
			}
			if err := kernel.MaxPool2DBackward(dOut, scratch.argmax[id], dx); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[0], dx); err != nil {
				return nil, err
			}
		case KindActivation:
			y := tensors[id]
			dx, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, err
			}
			if err := kernel.ActivationBackward(n.activation, y, dOut, dx); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[0], dx); err != nil {
				return nil, err
			}
		case KindBatchNorm:
			dx, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, err
			}
			if err := kernel.BatchNormBackward(scratch.bnCache[id], n.shape, dOut, n.gamma.Data, dx, n.gamma.Grad, n.beta.Grad); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[0], dx); err != nil {
				return nil, err
			}
		case KindDropout:
			dx, err := tensor.New(n.shape, tensor.Clean)
			if err != nil {
				return nil, err
			}
			if err := kernel.DropoutBackward(dOut, dx, scratch.mask[id]); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[0], dx); err != nil {
				return nil, err
			}
		case KindSum:
			da, err := tensor.New(mustShape(e.graph, n.parents[0]), tensor.Clean)
			if err != nil {
				return nil, err
			}
			copy(da.Data(), dOut.Data())
			if err := addGrad(dMap, n.parents[0], da); err != nil {
				return nil, err
			}
			db, err := tensor.New(mustShape(e.graph, n.parents[1]), tensor.Clean)
			if err != nil {
				return nil, err
			}
			copy(db.Data(), dOut.Data())
			if err := addGrad(dMap, n.parents[1], db); err != nil {
				return nil, err
			}
		case KindDepthConcat:
			da, err := tensor.New(mustShape(e.graph, n.parents[0]), tensor.Clean)
			if err != nil {
				return nil, err
			}
			db, err := tensor.New(mustShape(e.graph, n.parents[1]), tensor.Clean)
			if err != nil {
				return nil, err
			}
			if err := depthSplit(dOut, da, db); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[0], da); err != nil {
				return nil, err
			}
			if err := addGrad(dMap, n.parents[1], db); err != nil {
				return nil, err
			}
		default:
			return nil, errs.New(errs.InvalidArgument, pkg+".Backward", "unknown node kind %d", n.kind)
		}

		dOut.Release()
		if t, ok := tensors[id]; ok {
			t.Release()
			delete(tensors, id)
		}
	}

	grads := make(map[NodeID][]*optim.Parameter)
	for _, id := range e.order {
		n, _ := e.graph.node(id)
		if params := n.Parameters(); len(params) > 0 {
			grads[id] = params
		}
	}
	return grads, nil
}

func mustShape(g *Graph, id NodeID) tensor.Shape {
	n, _ := g.node(id)
	return n.shape
}
