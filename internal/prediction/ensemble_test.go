package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateVotesOffsets(t *testing.T) {
	aggregator := NewEnsembleAggregator()
	base := ModelVote{Prediction: Normal, Confidence: 80}

	votes := aggregator.SimulateVotes(base, DefaultModels())
	require.Len(t, votes, 4)

	assert.InDelta(t, 82.0, votes["xgboost"].Confidence, 0.001)
	assert.InDelta(t, 79.0, votes["random_forest"].Confidence, 0.001)
	assert.InDelta(t, 77.0, votes["logistic"].Confidence, 0.001)
	assert.InDelta(t, 78.0, votes["knn"].Confidence, 0.001)

	for name, vote := range votes {
		assert.Equal(t, Normal, vote.Prediction, "model %s should echo the base class", name)
	}
}

func TestSimulateVotesSkipsModelsWithoutOffset(t *testing.T) {
	aggregator := NewEnsembleAggregator()
	base := ModelVote{Prediction: VeryGood, Confidence: 92}

	// mlp carries a vote weight but no simulation offset, so it produces
	// no vote here. Unknown names are dropped outright.
	votes := aggregator.SimulateVotes(base, []string{"xgboost", "mlp", "transformer"})

	require.Len(t, votes, 1)
	assert.Contains(t, votes, "xgboost")
}

func TestSimulateVotesConfidenceNotCapped(t *testing.T) {
	aggregator := NewEnsembleAggregator()
	base := ModelVote{Prediction: VeryGood, Confidence: 95}

	// Per-model confidences may exceed the final cap
	votes := aggregator.SimulateVotes(base, []string{"xgboost"})
	assert.InDelta(t, 97.0, votes["xgboost"].Confidence, 0.001)
}

func TestWeightedVoteMajority(t *testing.T) {
	aggregator := NewEnsembleAggregator()

	votes := map[string]ModelVote{
		"xgboost":       {Prediction: VeryGood, Confidence: 92},
		"random_forest": {Prediction: VeryGood, Confidence: 89},
		"logistic":      {Prediction: Normal, Confidence: 77},
		"knn":           {Prediction: Normal, Confidence: 78},
	}

	class, confidence := aggregator.WeightedVote(votes)
	assert.Equal(t, VeryGood, class)

	// Confidence is the weight-normalized average across all votes
	expected := (92*0.4 + 89*0.3 + 77*0.2 + 78*0.1) / 1.0
	assert.InDelta(t, expected, confidence, 0.05)
}

func TestWeightedVoteWeightBeatsCount(t *testing.T) {
	aggregator := NewEnsembleAggregator()

	// Three models voting Normal outweigh xgboost alone even though
	// xgboost carries the single largest weight.
	votes := map[string]ModelVote{
		"xgboost":       {Prediction: VeryGood, Confidence: 92},
		"random_forest": {Prediction: Normal, Confidence: 79},
		"logistic":      {Prediction: Normal, Confidence: 77},
		"knn":           {Prediction: Normal, Confidence: 78},
	}

	class, _ := aggregator.WeightedVote(votes)
	assert.Equal(t, Normal, class)
}

func TestWeightedVoteTieBreaksInClassOrder(t *testing.T) {
	aggregator := NewEnsembleAggregator()

	// xgboost (0.4) against random_forest plus mlp (0.3 + 0.1) is an exact
	// tie, which resolves to the earlier class in the canonical order.
	votes := map[string]ModelVote{
		"xgboost":       {Prediction: Normal, Confidence: 78},
		"random_forest": {Prediction: VeryBad, Confidence: 65},
		"mlp":           {Prediction: VeryBad, Confidence: 64},
	}

	class, _ := aggregator.WeightedVote(votes)
	assert.Equal(t, Normal, class)
}

func TestWeightedVoteIgnoresUnknownModels(t *testing.T) {
	aggregator := NewEnsembleAggregator()

	votes := map[string]ModelVote{
		"xgboost":     {Prediction: Normal, Confidence: 80},
		"transformer": {Prediction: VeryBad, Confidence: 99},
	}

	class, confidence := aggregator.WeightedVote(votes)
	assert.Equal(t, Normal, class)
	assert.InDelta(t, 80.0, confidence, 0.001)
}

func TestWeightedVoteEmptyFallsBack(t *testing.T) {
	aggregator := NewEnsembleAggregator()

	class, confidence := aggregator.WeightedVote(map[string]ModelVote{})
	assert.Equal(t, Normal, class)
	assert.InDelta(t, 75.0, confidence, 0.001)
}

func TestWeightedVoteFinalConfidenceCapped(t *testing.T) {
	aggregator := NewEnsembleAggregator()

	votes := map[string]ModelVote{
		"xgboost":       {Prediction: VeryGood, Confidence: 97},
		"random_forest": {Prediction: VeryGood, Confidence: 96},
	}

	_, confidence := aggregator.WeightedVote(votes)
	assert.Equal(t, 95.0, confidence)
}
