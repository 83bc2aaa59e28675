package train

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/dataset"
	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/graph"
	"github.com/nnforge/gonn/internal/obs"
	"github.com/nnforge/gonn/optim"
	"github.com/nnforge/gonn/tensor"
)

// Run trains exec against train for up to epochs passes, applying opt
// to every gradient produced by Backward. Stops early on convergence
// (if validation is configured), numeric overflow, or cancellation.
func Run(exec *graph.Executor, train *dataset.Dataset, opt optim.Optimizer, epochs int, opts ...Option) (*Report, error) {
	c, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	if epochs <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".Run", "epochs must be positive, got %d", epochs)
	}

	start := time.Now()
	report := &Report{StopReason: Completed}
	var recentValidation []float32
	iteration := 0

epochLoop:
	for epoch := 0; epoch < epochs; epoch++ {
		select {
		case <-c.ctx.Done():
			report.StopReason = Cancelled
			break epochLoop
		default:
		}

		if err := train.CrossShuffle(c.source); err != nil {
			return nil, err
		}

		var trainCostSum float32
		batches := train.Batches()
		for _, b := range batches {
			select {
			case <-c.ctx.Done():
				report.StopReason = Cancelled
				break epochLoop
			default:
			}

			cost, err := exec.Loss(b.X, b.Y, true)
			if err != nil {
				return nil, err
			}
			trainCostSum += cost

			grads, err := exec.Backward(b.X, b.Y)
			if err != nil {
				return nil, err
			}

			select {
			case <-c.ctx.Done():
				report.StopReason = Cancelled
				break epochLoop
			default:
			}

			for _, params := range grads {
				for _, p := range params {
					if err := opt.Update(p); err != nil {
						return nil, err
					}
				}
			}

			if overflowed(exec) || math32.IsNaN(cost) || math32.IsInf(cost, 0) {
				report.StopReason = Overflow
				break epochLoop
			}

			iteration++
			if c.progress != nil {
				c.progress(Progress{Epoch: epoch, Iteration: iteration, Cost: cost})
			}
		}

		epochReport := EpochReport{Epoch: epoch, TrainCost: trainCostSum / float32(len(batches))}

		if c.validation != nil {
			valCost, err := evaluateCost(exec, c.validation, c.maxBatchSize)
			if err != nil {
				return nil, err
			}
			epochReport.ValidationCost = valCost
			recentValidation = append(recentValidation, valCost)
			if len(recentValidation) > c.epochsWindow {
				recentValidation = recentValidation[len(recentValidation)-c.epochsWindow:]
			}
			if converged(recentValidation, c.epochsWindow, c.tolerance) {
				report.Epochs = append(report.Epochs, epochReport)
				report.StopReason = Converged
				obs.Log.Info().Int("epoch", epoch).Msg("training converged")
				break epochLoop
			}
		}

		if c.test != nil {
			testCost, testAcc, err := evaluateCostAndAccuracy(exec, c.test, c.accuracy, c.maxBatchSize)
			if err != nil {
				return nil, err
			}
			epochReport.TestCost = testCost
			epochReport.TestAccuracy = testAcc
			if c.progress != nil {
				c.progress(Progress{Epoch: epoch, Iteration: iteration, Cost: testCost, Accuracy: testAcc})
			}
		}

		report.Epochs = append(report.Epochs, epochReport)
		obs.Log.Debug().Int("epoch", epoch).Float32("train_cost", epochReport.TrainCost).Msg("epoch complete")
	}

	if report.StopReason == Cancelled {
		obs.Log.Warn().Msg("training cancelled")
	} else if report.StopReason == Overflow {
		obs.Log.Warn().Msg("training stopped: numeric overflow")
	}

	report.Duration = time.Since(start).Seconds()
	return report, nil
}

func converged(recent []float32, window int, tolerance float32) bool {
	if len(recent) < window {
		return false
	}
	first := recent[0]
	for _, v := range recent[1:] {
		if math32.Abs(v-first) > tolerance {
			return false
		}
	}
	return true
}

func overflowed(exec *graph.Executor) bool {
	for _, p := range exec.Parameters() {
		for _, v := range p.Data.Data() {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// chunk is a dataset.Batch plus whether its tensors were freshly
// allocated by chunkBatches (and so must be released after use).
type chunk struct {
	dataset.Batch
	owned bool
}

// chunkBatches splits any batch wider than maxRows into owned
// sub-batches, so validation/test evaluation never holds more than
// maxRows samples live at once.
func chunkBatches(batches []dataset.Batch, maxRows int) ([]chunk, error) {
	out := make([]chunk, 0, len(batches))
	for _, b := range batches {
		rows := b.X.Shape().N
		if rows <= maxRows {
			out = append(out, chunk{Batch: b})
			continue
		}
		xCols, yCols := b.X.Shape().CHW(), b.Y.Shape().CHW()
		xd, yd := b.X.Data(), b.Y.Data()
		for start := 0; start < rows; start += maxRows {
			end := start + maxRows
			if end > rows {
				end = rows
			}
			n := end - start
			xt, err := tensor.From(xd[start*xCols:end*xCols], tensor.Matrix(n, xCols))
			if err != nil {
				return nil, err
			}
			yt, err := tensor.From(yd[start*yCols:end*yCols], tensor.Matrix(n, yCols))
			if err != nil {
				return nil, err
			}
			out = append(out, chunk{Batch: dataset.Batch{X: xt, Y: yt}, owned: true})
		}
	}
	return out, nil
}

func evaluateCost(exec *graph.Executor, d *dataset.Dataset, maxBatchSize int) (float32, error) {
	chunks, err := chunkBatches(d.Batches(), maxBatchSize)
	if err != nil {
		return 0, err
	}
	var sum float32
	for _, c := range chunks {
		cost, err := exec.Loss(c.X, c.Y, false)
		if c.owned {
			c.X.Release()
			c.Y.Release()
		}
		if err != nil {
			return 0, err
		}
		sum += cost
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	return sum / float32(len(chunks)), nil
}

func evaluateCostAndAccuracy(exec *graph.Executor, d *dataset.Dataset, test AccuracyTest, maxBatchSize int) (float32, float32, error) {
	chunks, err := chunkBatches(d.Batches(), maxBatchSize)
	if err != nil {
		return 0, 0, err
	}
	var costSum, accSum float32
	for _, c := range chunks {
		yHat, err := exec.Forward(c.X, false)
		if err != nil {
			if c.owned {
				c.X.Release()
				c.Y.Release()
			}
			return 0, 0, err
		}
		accSum += evaluateAccuracy(test, yHat, c.Y)
		yHat.Release()
		cost, err := exec.Loss(c.X, c.Y, false)
		if c.owned {
			c.X.Release()
			c.Y.Release()
		}
		if err != nil {
			return 0, 0, err
		}
		costSum += cost
	}
	if len(chunks) == 0 {
		return 0, 0, nil
	}
	return costSum / float32(len(chunks)), accSum / float32(len(chunks)), nil
}
