package train

import (
	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/tensor"
)

// evaluateAccuracy scores yHat against y row by row under the
// configured AccuracyTest, returning the fraction of rows judged
// correct.
func evaluateAccuracy(test AccuracyTest, yHat, y *tensor.Tensor) float32 {
	rows := yHat.Shape().N
	cols := yHat.Shape().CHW()
	if rows == 0 {
		return 0
	}
	hd, yd := yHat.Data(), y.Data()
	correct := 0
	for i := 0; i < rows; i++ {
		p := i * cols
		if rowCorrect(test, hd[p:p+cols], yd[p:p+cols]) {
			correct++
		}
	}
	return float32(correct) / float32(rows)
}

func rowCorrect(test AccuracyTest, hat, target []float32) bool {
	switch test.Kind {
	case Threshold:
		for i, v := range hat {
			if math32.Abs(v-target[i]) > test.Bound {
				return false
			}
		}
		return true
	case Distance:
		var sumSq float32
		for i, v := range hat {
			d := v - target[i]
			sumSq += d * d
		}
		return math32.Sqrt(sumSq) <= test.Bound
	default:
		return argmax(hat) == argmax(target)
	}
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row[1:] {
		if v > row[best] {
			best = i + 1
		}
	}
	return best
}
