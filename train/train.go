// Package train implements the mini-batch training loop: per-epoch
// cross-shuffle, forward/loss/backward/optimizer-step iteration over a
// graph executor, validation-driven convergence detection, numeric
// overflow and cancellation checks, and progress reporting. Grounded
// on pkg/core/math/learn/training.go's TrainStep (forward, loss,
// gradient, backward, update ordering) and pkg/core/math/learn/xor_test.go's
// epoch/convergence-check loop, configured via the teacher's
// layers.Option closure-over-struct idiom, generalized here to the
// graph/dataset/optim packages instead of the teacher's sequential Model.
package train

import (
	"context"

	"github.com/nnforge/gonn/dataset"
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/internal/rng"
)

const pkg = "train"

// AccuracyKind selects how a batch's predictions are scored against
// its targets.
type AccuracyKind int

const (
	// Argmax compares the index of the largest predicted value against
	// the index of the largest target value (the default classifier
	// predicate).
	Argmax AccuracyKind = iota
	// Threshold counts a prediction correct when every output agrees
	// with its target within an absolute tolerance.
	Threshold
	// Distance counts a prediction correct when the Euclidean distance
	// between prediction and target is below a bound (for regression).
	Distance
)

// AccuracyTest configures how predictions are scored.
type AccuracyTest struct {
	Kind  AccuracyKind
	Bound float32 // Threshold's tolerance, or Distance's maximum distance
}

// Option configures a training run, in the teacher's layers.Option idiom.
type Option func(*config)

type config struct {
	maxBatchSize  int
	accuracy      AccuracyTest
	tolerance     float32
	epochsWindow  int
	validation    *dataset.Dataset
	test          *dataset.Dataset
	progress      func(Progress)
	ctx           context.Context
	source        *rng.Source
}

func defaultConfig() *config {
	return &config{
		maxBatchSize: 32,
		accuracy:     AccuracyTest{Kind: Argmax},
		tolerance:    1e-4,
		epochsWindow: 5,
		ctx:          context.Background(),
	}
}

// WithMaxBatchSize caps the sample count used per validation/test
// evaluation chunk. Must be at least 10.
func WithMaxBatchSize(n int) Option {
	return func(c *config) { c.maxBatchSize = n }
}

// WithAccuracyTest overrides the default Argmax accuracy predicate.
func WithAccuracyTest(a AccuracyTest) Option {
	return func(c *config) { c.accuracy = a }
}

// WithValidation enables per-epoch validation cost monitoring and
// convergence detection.
func WithValidation(d *dataset.Dataset, tolerance float32, epochsWindow int) Option {
	return func(c *config) {
		c.validation = d
		c.tolerance = tolerance
		c.epochsWindow = epochsWindow
	}
}

// WithTest enables per-epoch test cost/accuracy reporting.
func WithTest(d *dataset.Dataset) Option {
	return func(c *config) { c.test = d }
}

// WithProgress registers a callback invoked after every batch, and after
// each epoch's test evaluation when a test dataset is configured.
func WithProgress(fn func(Progress)) Option {
	return func(c *config) { c.progress = fn }
}

// WithContext registers a cancellation signal polled between batches
// and before each optimizer step.
func WithContext(ctx context.Context) Option {
	return func(c *config) { c.ctx = ctx }
}

// WithRNGSource overrides the thread-local RNG source used for the
// per-epoch cross-shuffle, useful for deterministic tests.
func WithRNGSource(source *rng.Source) Option {
	return func(c *config) { c.source = source }
}

func resolveConfig(opts []Option) (*config, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if c.source == nil {
		c.source = rng.NewThreadLocal()
	}
	if c.maxBatchSize < 10 {
		return nil, errs.New(errs.InvalidArgument, pkg+".Run", "MaxBatchSize must be at least 10, got %d", c.maxBatchSize)
	}
	if c.epochsWindow < 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".Run", "EpochsWindow must be at least 1, got %d", c.epochsWindow)
	}
	if c.tolerance <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".Run", "Tolerance must be positive, got %f", c.tolerance)
	}
	return c, nil
}

// Progress is delivered to a registered callback as training advances.
type Progress struct {
	Epoch     int
	Iteration int
	Cost      float32
	Accuracy  float32
}

// StopReason categorizes why a training run ended.
type StopReason int

const (
	// Completed means every requested epoch ran to term.
	Completed StopReason = iota
	// Converged means validation cost stabilized within tolerance over
	// the configured window.
	Converged
	// Overflow means a NaN or infinite value was detected in the cost
	// or a parameter.
	Overflow
	// Cancelled means the caller's context was done.
	Cancelled
)

func (s StopReason) String() string {
	switch s {
	case Completed:
		return "completed"
	case Converged:
		return "converged"
	case Overflow:
		return "overflow"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// EpochReport captures one epoch's cost/accuracy across the training,
// validation, and test datasets (zero value when a dataset wasn't
// configured).
type EpochReport struct {
	Epoch          int
	TrainCost      float32
	ValidationCost float32
	TestCost       float32
	TestAccuracy   float32
}

// Report is the outcome of a Run call.
type Report struct {
	StopReason StopReason
	Epochs     []EpochReport
	Duration   float64 // seconds
}
