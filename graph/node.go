// Package graph implements the computational-graph model: nodes wired
// into a DAG by construction calls, assembled into an arena by Build,
// and driven by an Executor's forward/backward traversal.
//
// Grounded on pkg/core/math/nn/{builder.go,layer.go,model.go} (the
// sequential Layer/Model/ModelBuilder trio) and pkg/core/math/nn/layers/base.go's
// functional-options pattern, generalized from a linear layer chain
// into an arbitrary DAG per Design Notes (arena with numeric ids and
// parent-id lists, instead of the teacher's live parent/child object
// references).
package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/initializer"
	"github.com/nnforge/gonn/internal/rng"
	"github.com/nnforge/gonn/kernel"
	"github.com/nnforge/gonn/optim"
	"github.com/nnforge/gonn/tensor"
)

// NodeID identifies a node within a single Graph's arena. Ids are
// assigned sequentially at construction time and are stable once
// assigned; they are not meaningful across different Graph values.
type NodeID int

// Kind identifies the forward/backward variant an Executor dispatches
// on. Sealed: the executor's type switch over Kind is exhaustive.
type Kind int

const (
	KindPlaceholder Kind = iota
	KindFullyConnected
	KindConvolution
	KindPooling
	KindActivation
	KindBatchNorm
	KindDropout
	KindSum
	KindDepthConcat
	KindOutput
)

// Node is one arena entry. Only the fields relevant to its Kind are
// populated; the rest stay at zero value.
type Node struct {
	id      NodeID
	kind    Kind
	parents []NodeID
	shape   tensor.Shape

	activation kernel.Activation
	cost       kernel.Cost
	softmax    bool // Output-kind only: use SoftmaxForward/SoftmaxCrossEntropyGradient instead of activation+cost

	bnMode      kernel.BatchNormMode
	bnIteration int

	keepProb float32

	kernelH, kernelW, kernelCount int

	weights *optim.Parameter
	bias    *optim.Parameter
	gamma   *optim.Parameter
	beta    *optim.Parameter

	runningMean     []float32
	runningVariance []float32
}

// ID returns the node's arena id.
func (n *Node) ID() NodeID { return n.id }

// Kind returns the node's dispatch kind.
func (n *Node) Kind() Kind { return n.kind }

// Shape returns the node's output shape.
func (n *Node) Shape() tensor.Shape { return n.shape }

// Parameters returns the node's trainable parameters in a stable
// order (weights, bias, gamma, beta), skipping those the node kind
// doesn't have.
func (n *Node) Parameters() []*optim.Parameter {
	var out []*optim.Parameter
	for _, p := range []*optim.Parameter{n.weights, n.bias, n.gamma, n.beta} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Equals reports whether n and o are the same kind and output shape
// and, for weighted nodes, hold equal parameter values — including
// batch-norm running mean/variance for batch-norm nodes. Node ids and
// parent wiring are not compared, so nodes from different graphs can
// compare equal.
func (n *Node) Equals(o *Node) bool {
	if o == nil || n.kind != o.kind || !n.shape.Equal(o.shape) {
		return false
	}
	if !parameterEquals(n.weights, o.weights) || !parameterEquals(n.bias, o.bias) ||
		!parameterEquals(n.gamma, o.gamma) || !parameterEquals(n.beta, o.beta) {
		return false
	}
	return floatsEqual(n.runningMean, o.runningMean) && floatsEqual(n.runningVariance, o.runningVariance)
}

func parameterEquals(a, b *optim.Parameter) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Data.Equals(b.Data)
}

func floatsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	const tol = 1e-4
	for i, v := range a {
		if math.Abs(float64(v-b[i])) > tol {
			return false
		}
	}
	return true
}

// ParameterHash returns a SHA-256-derived identity over the node's
// parameter tensors: weights XOR biases, further XORed with the
// batch-norm running mean/variance when present. Grounded on
// dataset.Dataset.ContentID's XOR-fold of per-tensor digests, so
// identity doesn't depend on which parameter is hashed first.
func (n *Node) ParameterHash() [32]byte {
	var out [32]byte
	for _, data := range n.hashableParameterData() {
		d := floatDigest(data)
		for i := range out {
			out[i] ^= d[i]
		}
	}
	return out
}

func (n *Node) hashableParameterData() [][]float32 {
	var out [][]float32
	for _, p := range []*optim.Parameter{n.weights, n.bias, n.gamma, n.beta} {
		if p != nil {
			out = append(out, p.Data.Data())
		}
	}
	if len(n.runningMean) > 0 {
		out = append(out, n.runningMean)
	}
	if len(n.runningVariance) > 0 {
		out = append(out, n.runningVariance)
	}
	return out
}

func floatDigest(data []float32) [32]byte {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, v := range data {
		binary.BigEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Option configures a node at construction time, in the teacher's
// layers.Option idiom (closure over a private config struct).
type Option func(*config)

type config struct {
	weightsInit initializer.Weights
	biasInit    initializer.Biases
	keepProb    float32
	source      *rng.Source
}

func defaultConfig() *config {
	return &config{keepProb: 0.5}
}

// WithWeightsInit overrides the default Glorot-uniform weight initializer.
func WithWeightsInit(fn func(dst []float32, source *rng.Source)) Option {
	return func(c *config) { c.weightsInit = fn }
}

// WithBiasInit overrides the default zero bias initializer.
func WithBiasInit(fn func(dst []float32, source *rng.Source)) Option {
	return func(c *config) { c.biasInit = fn }
}

// WithKeepProb overrides Dropout's default keep-probability of 0.5.
func WithKeepProb(p float32) Option {
	return func(c *config) { c.keepProb = p }
}

// WithRNGSource overrides the thread-local RNG source used for parameter
// initialization, useful for deterministic tests.
func WithRNGSource(source *rng.Source) Option {
	return func(c *config) { c.source = source }
}

func newParameter(shape tensor.Shape, source *rng.Source, init initializer.Weights) (*optim.Parameter, error) {
	data := make([]float32, shape.Size())
	if init != nil {
		init(data, source)
	}
	dataT, err := tensor.From(data, shape)
	if err != nil {
		return nil, err
	}
	gradT, err := tensor.New(shape, tensor.Clean)
	if err != nil {
		return nil, err
	}
	return &optim.Parameter{Data: dataT, Grad: gradT, RequiresGrad: true}, nil
}

func validateShape(op string, shape tensor.Shape) error {
	if !shape.Valid() {
		return errs.New(errs.InvalidArgument, op, "invalid shape %s", shape)
	}
	return nil
}
