package graph

import (
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/initializer"
	"github.com/nnforge/gonn/internal/rng"
	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/tensor"
)

const pkg = "graph"

// Graph accumulates nodes as they are constructed. It is append-only:
// once a node is added its id never changes. Call Build with the
// intended terminal node to assemble an Executor.
type Graph struct {
	nodes []*Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

func (g *Graph) add(n *Node) NodeID {
	n.id = NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	return n.id
}

func (g *Graph) node(id NodeID) (*Node, error) {
	if int(id) < 0 || int(id) >= len(g.nodes) {
		return nil, errs.New(errs.InvalidArgument, pkg+".node", "node id %d out of range", id)
	}
	return g.nodes[id], nil
}

func resolveConfig(opts []Option) *config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if c.source == nil {
		c.source = rng.NewThreadLocal()
	}
	return c
}

// Placeholder registers a graph input of the given shape.
func (g *Graph) Placeholder(shape tensor.Shape) (NodeID, error) {
	if err := validateShape(pkg+".Placeholder", shape); err != nil {
		return 0, err
	}
	return g.add(&Node{kind: KindPlaceholder, shape: shape}), nil
}

// FullyConnected adds a dense layer: y = x*W + b, W shaped (in,1,1,out).
func (g *Graph) FullyConnected(parent NodeID, outputs int, opts ...Option) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	fanIn := p.shape.CHW()
	if fanIn <= 0 {
		return 0, errs.New(errs.InvalidArgument, pkg+".FullyConnected", "parent has no features: %s", p.shape)
	}
	if outputs <= 0 {
		return 0, errs.New(errs.InvalidArgument, pkg+".FullyConnected", "outputs must be positive, got %d", outputs)
	}
	c := resolveConfig(opts)
	weightsInit := c.weightsInit
	if weightsInit == nil {
		weightsInit = initializer.GlorotUniform(fanIn, outputs)
	}
	biasInit := c.biasInit
	if biasInit == nil {
		biasInit = initializer.ZeroBias
	}
	weights, err := newParameter(tensor.Matrix(fanIn, outputs), c.source, weightsInit)
	if err != nil {
		return 0, err
	}
	bias, err := newParameter(tensor.Matrix(1, outputs), c.source, biasInit)
	if err != nil {
		return 0, err
	}
	n := &Node{
		kind:    KindFullyConnected,
		parents: []NodeID{parent},
		shape:   tensor.Matrix(p.shape.N, outputs),
		weights: weights,
		bias:    bias,
	}
	return g.add(n), nil
}

// Convolution adds a valid-padding, stride-1 2D convolution with
// kernelCount square kernels of side kernelSize.
func (g *Graph) Convolution(parent NodeID, kernelSize, kernelCount int, opts ...Option) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	if kernelSize <= 0 || kernelCount <= 0 {
		return 0, errs.New(errs.InvalidArgument, pkg+".Convolution", "kernel size and count must be positive")
	}
	outShape, err := kernel.Conv2DOutputShape(p.shape, kernelCount, kernelSize, kernelSize)
	if err != nil {
		return 0, err
	}
	c := resolveConfig(opts)
	fanIn := p.shape.C * kernelSize * kernelSize
	fanOut := kernelCount * kernelSize * kernelSize
	weightsInit := c.weightsInit
	if weightsInit == nil {
		weightsInit = initializer.GlorotUniform(fanIn, fanOut)
	}
	biasInit := c.biasInit
	if biasInit == nil {
		biasInit = initializer.ZeroBias
	}
	kernelShape := tensor.Shape{N: kernelCount, C: p.shape.C, H: kernelSize, W: kernelSize}
	weights, err := newParameter(kernelShape, c.source, weightsInit)
	if err != nil {
		return 0, err
	}
	bias, err := newParameter(tensor.Matrix(1, kernelCount), c.source, biasInit)
	if err != nil {
		return 0, err
	}
	n := &Node{
		kind:        KindConvolution,
		parents:     []NodeID{parent},
		shape:       outShape,
		weights:     weights,
		bias:        bias,
		kernelH:     kernelSize,
		kernelW:     kernelSize,
		kernelCount: kernelCount,
	}
	return g.add(n), nil
}

// Pooling adds a 2x2 max-pooling node. Requires even H and W.
func (g *Graph) Pooling(parent NodeID) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	outShape, err := kernel.MaxPool2DOutputShape(p.shape)
	if err != nil {
		return 0, err
	}
	n := &Node{kind: KindPooling, parents: []NodeID{parent}, shape: outShape}
	return g.add(n), nil
}

// Activation adds an elementwise activation node.
func (g *Graph) Activation(parent NodeID, act kernel.Activation) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	n := &Node{kind: KindActivation, parents: []NodeID{parent}, shape: p.shape, activation: act}
	return g.add(n), nil
}

// BatchNormalization adds a batch-normalization node in the given mode.
func (g *Graph) BatchNormalization(parent NodeID, mode kernel.BatchNormMode, opts ...Option) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	groups, _ := batchNormGroups(mode, p.shape)
	c := resolveConfig(opts)
	gamma, err := newParameter(tensor.Matrix(1, groups), c.source, initializer.GammaOnes)
	if err != nil {
		return 0, err
	}
	beta, err := newParameter(tensor.Matrix(1, groups), c.source, initializer.BetaZeros)
	if err != nil {
		return 0, err
	}
	n := &Node{
		kind:            KindBatchNorm,
		parents:         []NodeID{parent},
		shape:           p.shape,
		bnMode:          mode,
		gamma:           gamma,
		beta:            beta,
		runningMean:     make([]float32, groups),
		runningVariance: make([]float32, groups),
	}
	for i := range n.runningVariance {
		n.runningVariance[i] = 1
	}
	return g.add(n), nil
}

// Dropout adds an inverted-dropout node. Default keep-probability is
// 0.5; override with WithKeepProb.
func (g *Graph) Dropout(parent NodeID, opts ...Option) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	c := resolveConfig(opts)
	if c.keepProb <= 0 || c.keepProb > 1 {
		return 0, errs.New(errs.InvalidArgument, pkg+".Dropout", "keep probability must be in (0,1], got %f", c.keepProb)
	}
	n := &Node{kind: KindDropout, parents: []NodeID{parent}, shape: p.shape, keepProb: c.keepProb}
	return g.add(n), nil
}

// Sum adds an elementwise a+b node. Requires identical shapes.
func (g *Graph) Sum(a, b NodeID) (NodeID, error) {
	pa, err := g.node(a)
	if err != nil {
		return 0, err
	}
	pb, err := g.node(b)
	if err != nil {
		return 0, err
	}
	if !pa.shape.Equal(pb.shape) {
		return 0, errs.New(errs.ShapeMismatch, pkg+".Sum", "shapes disagree: %s vs %s", pa.shape, pb.shape)
	}
	n := &Node{kind: KindSum, parents: []NodeID{a, b}, shape: pa.shape}
	return g.add(n), nil
}

// DepthConcatenation adds a channel-concatenation node. Requires
// identical H and W; output channels are a.C + b.C.
func (g *Graph) DepthConcatenation(a, b NodeID) (NodeID, error) {
	pa, err := g.node(a)
	if err != nil {
		return 0, err
	}
	pb, err := g.node(b)
	if err != nil {
		return 0, err
	}
	if pa.shape.H != pb.shape.H || pa.shape.W != pb.shape.W || pa.shape.N != pb.shape.N {
		return 0, errs.New(errs.ShapeMismatch, pkg+".DepthConcatenation", "shapes disagree: %s vs %s", pa.shape, pb.shape)
	}
	shape := tensor.Shape{N: pa.shape.N, C: pa.shape.C + pb.shape.C, H: pa.shape.H, W: pa.shape.W}
	n := &Node{kind: KindDepthConcat, parents: []NodeID{a, b}, shape: shape}
	return g.add(n), nil
}

// Output adds a graph terminal that applies act and compares against a
// target via cost.
func (g *Graph) Output(parent NodeID, act kernel.Activation, cost kernel.Cost) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	n := &Node{kind: KindOutput, parents: []NodeID{parent}, shape: p.shape, activation: act, cost: cost}
	return g.add(n), nil
}

// Softmax adds a weighted output terminal: a dense projection to
// outputs classes followed by softmax and log-likelihood cost, with
// the combined gradient shortcut yHat - y. Mirrors NeuralNetwork.NET's
// SoftmaxLayer, which derives from FullyConnectedLayer rather than
// reading its parent's shape directly — without its own weight layer a
// softmax node could only ever express a linear decision boundary over
// its parent's activations.
func (g *Graph) Softmax(parent NodeID, outputs int, opts ...Option) (NodeID, error) {
	p, err := g.node(parent)
	if err != nil {
		return 0, err
	}
	fanIn := p.shape.CHW()
	if fanIn <= 0 {
		return 0, errs.New(errs.InvalidArgument, pkg+".Softmax", "parent has no features: %s", p.shape)
	}
	if outputs <= 0 {
		return 0, errs.New(errs.InvalidArgument, pkg+".Softmax", "outputs must be positive, got %d", outputs)
	}
	c := resolveConfig(opts)
	weightsInit := c.weightsInit
	if weightsInit == nil {
		weightsInit = initializer.GlorotUniform(fanIn, outputs)
	}
	biasInit := c.biasInit
	if biasInit == nil {
		biasInit = initializer.ZeroBias
	}
	weights, err := newParameter(tensor.Matrix(fanIn, outputs), c.source, weightsInit)
	if err != nil {
		return 0, err
	}
	bias, err := newParameter(tensor.Matrix(1, outputs), c.source, biasInit)
	if err != nil {
		return 0, err
	}
	n := &Node{
		kind:    KindOutput,
		parents: []NodeID{parent},
		shape:   tensor.Matrix(p.shape.N, outputs),
		softmax: true,
		cost:    kernel.LogLikelihood,
		weights: weights,
		bias:    bias,
	}
	return g.add(n), nil
}

func batchNormGroups(mode kernel.BatchNormMode, shape tensor.Shape) (int, int) {
	if mode == kernel.PerActivation {
		return shape.CHW(), shape.N
	}
	return shape.C, shape.N * shape.H * shape.W
}
