package model

import (
	"math"
)

// WeightTolerance bounds the deviation of a normalized weight sum from 1.
const WeightTolerance = 1e-9

// WeightVector is an ordered set of weights, one per score source.
type WeightVector []float64

// Sum returns the sum of all weights.
func (w WeightVector) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// Normalized reports whether every weight is non-negative and the sum is 1
// within WeightTolerance.
func (w WeightVector) Normalized() bool {
	if len(w) == 0 {
		return false
	}
	for _, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= WeightTolerance
}

// AggregationResult is the weighted ensemble output and its additive
// per-agent decomposition.
type AggregationResult struct {
	FinalScore    float64            `json:"final_score"`
	Contributions map[string]float64 `json:"contributions"`
	WeightsUsed   WeightVector       `json:"weights"`
	AgentIDs      []string           `json:"agents"`
}

// ContributionSum returns the sum of contributions in agent order.
func (r *AggregationResult) ContributionSum() float64 {
	var s float64
	for _, id := range r.AgentIDs {
		s += r.Contributions[id]
	}
	return s
}
