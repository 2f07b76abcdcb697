package ensemble

import (
	"math"

	"github.com/sells-group/fraud-ensemble/internal/model"
)

// Aggregate computes the weighted sum of scores and its additive breakdown.
// scores and weights are positionally aligned. The final score is the sum of
// the contributions in input order, so the two always agree exactly.
func Aggregate(scores []model.AgentScore, weights model.WeightVector) (*model.AggregationResult, error) {
	if len(scores) != len(weights) {
		return nil, invalid(StageAggregate, ErrScoreCount, "got %d scores for %d weights", len(scores), len(weights))
	}
	if len(scores) == 0 {
		return nil, invalid(StageAggregate, ErrScoreCount, "no scores")
	}

	res := &model.AggregationResult{
		Contributions: make(map[string]float64, len(scores)),
		WeightsUsed:   append(model.WeightVector(nil), weights...),
		AgentIDs:      make([]string, len(scores)),
	}
	for i, s := range scores {
		if _, dup := res.Contributions[s.AgentID]; dup {
			return nil, invalid(StageAggregate, ErrScoreCount, "duplicate agent %q", s.AgentID)
		}
		if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
			return nil, invalid(StageAggregate, ErrInvalidScore, "agent %q score=%v", s.AgentID, s.Score)
		}
		c := weights[i] * s.Score
		res.Contributions[s.AgentID] = c
		res.AgentIDs[i] = s.AgentID
		res.FinalScore += c
	}
	return res, nil
}
