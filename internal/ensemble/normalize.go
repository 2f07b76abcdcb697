package ensemble

import (
	"math"

	"github.com/sells-group/fraud-ensemble/internal/model"
)

// builtinWeights is used when neither the caller nor configuration supplies
// a vector for three agents.
var builtinWeights = []float64{0.4, 0.3, 0.3}

// DefaultWeights returns a default vector of length n. Configured defaults
// win when their length matches; otherwise three agents get 0.4/0.3/0.3 and
// any other count gets equal weights.
func DefaultWeights(n int, configured []float64) []float64 {
	switch {
	case n <= 0:
		return nil
	case len(configured) == n:
		return append([]float64(nil), configured...)
	case n == len(builtinWeights):
		return append([]float64(nil), builtinWeights...)
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// Normalize validates weights against the expected number of score sources
// and scales them to sum to 1. Empty weights fall back to defaults (see
// DefaultWeights). A vector that already sums to 1 within
// model.WeightTolerance is returned as a copy, so Normalize is idempotent.
func Normalize(weights []float64, expected int, defaults []float64) (model.WeightVector, error) {
	if len(weights) == 0 {
		weights = DefaultWeights(expected, defaults)
	}
	if len(weights) != expected {
		return nil, invalid(StageNormalize, ErrWeightCount, "got %d weights for %d agents", len(weights), expected)
	}

	var sum, largest float64
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, invalid(StageNormalize, ErrInvalidWeight, "weight[%d]=%v", i, w)
		}
		if w < 0 {
			return nil, invalid(StageNormalize, ErrNegativeWeight, "weight[%d]=%v", i, w)
		}
		sum += w
		largest = math.Max(largest, w)
	}
	if sum == 0 {
		return nil, invalid(StageNormalize, ErrZeroWeightSum, "%d weights", len(weights))
	}

	out := make(model.WeightVector, len(weights))
	if math.Abs(sum-1) <= model.WeightTolerance {
		copy(out, weights)
		return out, nil
	}
	// Finite weights near MaxFloat64 can overflow the sum.
	scale := 1.0
	if math.IsInf(sum, 0) {
		scale = largest
		sum = 0
		for _, w := range weights {
			sum += w / scale
		}
	}
	for i, w := range weights {
		out[i] = (w / scale) / sum
	}
	return out, nil
}
