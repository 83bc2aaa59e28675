// Package dataset implements the batch containers the training loop
// iterates over: an ordered slice of (X, Y) batches plus cached shape
// metadata and a content-identity hash. Grounded on the parameter-hash
// SHA-256 pattern used for graph node identity, reusing
// crypto/sha256 from the standard library since no third-party hash
// package appears anywhere in the example pack.
package dataset

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/internal/rng"
	"github.com/nnforge/gonn/tensor"
)

const pkg = "dataset"

// Batch pairs one mini-batch's inputs with its targets.
type Batch struct {
	X *tensor.Tensor
	Y *tensor.Tensor
}

// Dataset is an ordered collection of batches sharing input/output
// feature counts.
type Dataset struct {
	batches        []Batch
	count          int
	inputFeatures  int
	outputFeatures int
}

// New validates batches share consistent feature widths and wraps
// them into a Dataset.
func New(batches []Batch) (*Dataset, error) {
	if len(batches) == 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".New", "no batches")
	}
	inputFeatures := batches[0].X.Shape().CHW()
	outputFeatures := batches[0].Y.Shape().CHW()
	count := 0
	for i, b := range batches {
		if b.X.Shape().N != b.Y.Shape().N {
			return nil, errs.New(errs.ShapeMismatch, pkg+".New", "batch %d: X has %d samples, Y has %d", i, b.X.Shape().N, b.Y.Shape().N)
		}
		if b.X.Shape().CHW() != inputFeatures {
			return nil, errs.New(errs.ShapeMismatch, pkg+".New", "batch %d: input features %d does not match %d", i, b.X.Shape().CHW(), inputFeatures)
		}
		if b.Y.Shape().CHW() != outputFeatures {
			return nil, errs.New(errs.ShapeMismatch, pkg+".New", "batch %d: output features %d does not match %d", i, b.Y.Shape().CHW(), outputFeatures)
		}
		count += b.X.Shape().N
	}
	return &Dataset{batches: batches, count: count, inputFeatures: inputFeatures, outputFeatures: outputFeatures}, nil
}

// Count returns the total sample count across all batches.
func (d *Dataset) Count() int { return d.count }

// InputFeatures returns the per-sample input width.
func (d *Dataset) InputFeatures() int { return d.inputFeatures }

// OutputFeatures returns the per-sample output width.
func (d *Dataset) OutputFeatures() int { return d.outputFeatures }

// Batches returns the dataset's batches in order. The returned slice
// must not be mutated by the caller.
func (d *Dataset) Batches() []Batch { return d.batches }

// ContentID is an order-independent identity hash: the XOR-fold of
// each batch's (xHash, yHash) SHA-256 digest prefix, so two datasets
// holding the same batches in a different order compare equal.
func (d *Dataset) ContentID() uint64 {
	var id uint64
	for _, b := range d.batches {
		id ^= floatHash(b.X.Data()) ^ floatHash(b.Y.Data())
	}
	return id
}

func floatHash(data []float32) uint64 {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, v := range data {
		binary.BigEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// CrossShuffle swaps samples pairwise across batches, then shuffles
// the batch order, per the training loop's per-epoch step 1.
func (d *Dataset) CrossShuffle(source *rng.Source) error {
	n := len(d.batches)
	for i := 0; i < n; i++ {
		j := source.Intn(n)
		if j == i {
			continue
		}
		if err := swapRandomRows(d.batches[i], d.batches[j], source); err != nil {
			return err
		}
	}
	source.Shuffle(n, func(i, j int) { d.batches[i], d.batches[j] = d.batches[j], d.batches[i] })
	return nil
}

func swapRandomRows(a, b Batch, source *rng.Source) error {
	rowsA, rowsB := a.X.Shape().N, b.X.Shape().N
	if rowsA != rowsB {
		return errs.New(errs.ShapeMismatch, pkg+".CrossShuffle", "batch sizes disagree: %d vs %d", rowsA, rowsB)
	}
	xCols, yCols := a.X.Shape().CHW(), a.Y.Shape().CHW()
	ax, bx := a.X.Data(), b.X.Data()
	ay, by := a.Y.Data(), b.Y.Data()
	for row := 0; row < rowsA; row++ {
		if source.Float32() >= 0.5 {
			continue
		}
		swapRow(ax, bx, row, xCols)
		swapRow(ay, by, row, yCols)
	}
	return nil
}

func swapRow(a, b []float32, row, cols int) {
	p := row * cols
	for k := 0; k < cols; k++ {
		a[p+k], b[p+k] = b[p+k], a[p+k]
	}
}

// Partition splits the dataset into train/validation/test subsets at
// batch boundaries, in proportion to trainFrac/valFrac/testFrac (which
// must be non-negative and sum to at most 1). Batch order is not
// reshuffled; call CrossShuffle first for a randomized split.
func Partition(d *Dataset, trainFrac, valFrac, testFrac float32) (train, val, test *Dataset, err error) {
	if trainFrac < 0 || valFrac < 0 || testFrac < 0 || trainFrac+valFrac+testFrac > 1.0001 {
		return nil, nil, nil, errs.New(errs.InvalidArgument, pkg+".Partition", "fractions must be non-negative and sum to at most 1, got %f/%f/%f", trainFrac, valFrac, testFrac)
	}
	n := len(d.batches)
	trainEnd := int(trainFrac * float32(n))
	valEnd := trainEnd + int(valFrac*float32(n))
	testEnd := valEnd + int(testFrac*float32(n))
	if testEnd > n {
		testEnd = n
	}
	train, err = subset(d.batches[:trainEnd])
	if err != nil {
		return nil, nil, nil, err
	}
	val, err = subset(d.batches[trainEnd:valEnd])
	if err != nil {
		return nil, nil, nil, err
	}
	test, err = subset(d.batches[valEnd:testEnd])
	if err != nil {
		return nil, nil, nil, err
	}
	return train, val, test, nil
}

func subset(batches []Batch) (*Dataset, error) {
	if len(batches) == 0 {
		return &Dataset{}, nil
	}
	return New(batches)
}
