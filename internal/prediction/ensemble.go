package prediction

import "math"

var (
	// modelOffsets shift the base confidence per model when votes are
	// simulated around the rule scorer's result. Model names outside this
	// table produce no vote.
	modelOffsets = map[string]float64{
		"xgboost":       2,
		"random_forest": -1,
		"logistic":      -3,
		"knn":           -2,
	}

	// modelWeights are the static accuracy-derived weights used for the
	// weighted class vote. Votes from names outside this table are ignored.
	modelWeights = map[string]float64{
		"xgboost":       0.4,
		"random_forest": 0.3,
		"logistic":      0.2,
		"knn":           0.1,
		"mlp":           0.1,
	}
)

const (
	fallbackClass      = Normal
	fallbackConfidence = 75.0
)

// DefaultModels returns the model names used when a request selects none.
func DefaultModels() []string {
	return []string{"xgboost", "random_forest", "logistic", "knn"}
}

// EnsembleAggregator builds per-model vote tables and resolves them into a
// final class by weighted voting.
type EnsembleAggregator struct{}

// NewEnsembleAggregator creates a new aggregator.
func NewEnsembleAggregator() *EnsembleAggregator {
	return &EnsembleAggregator{}
}

// SimulateVotes derives one vote per selected model by offsetting the base
// confidence. Per-model confidences are not capped; only the final
// confidence is. Unknown model names are skipped.
func (a *EnsembleAggregator) SimulateVotes(base ModelVote, selected []string) map[string]ModelVote {
	votes := make(map[string]ModelVote, len(selected))

	for _, name := range selected {
		offset, ok := modelOffsets[name]
		if !ok {
			continue
		}

		votes[name] = ModelVote{
			Prediction: base.Prediction,
			Confidence: round1(base.Confidence + offset),
		}
	}

	return votes
}

// WeightedVote resolves a vote table into a final class and confidence.
// Each vote accumulates its model's static weight toward its class; the
// class with the highest total wins, ties breaking in class order. The
// final confidence is the weight-normalized average of vote confidences.
// An empty table falls back to (Normal, 75.0).
func (a *EnsembleAggregator) WeightedVote(votes map[string]ModelVote) (Class, float64) {
	classTotals := make(map[Class]float64, len(classOrder))
	totalWeight := 0.0
	weightedConfidence := 0.0

	for name, vote := range votes {
		weight, ok := modelWeights[name]
		if !ok {
			continue
		}

		classTotals[vote.Prediction] += weight
		weightedConfidence += vote.Confidence * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return fallbackClass, fallbackConfidence
	}

	winner := classOrder[0]
	best := classTotals[winner]
	for _, class := range classOrder[1:] {
		if classTotals[class] > best {
			winner = class
			best = classTotals[class]
		}
	}

	confidence := round1(math.Min(weightedConfidence/totalWeight, confidenceCap))
	return winner, confidence
}
