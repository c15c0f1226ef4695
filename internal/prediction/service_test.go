package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func excellentApplicant() map[string]interface{} {
	return map[string]interface{}{
		"creditShort":        1.0,
		"creditLong":         1.0,
		"cph":                1.0,
		"ctl":                1.0,
		"aph":                1.0,
		"atl":                1.0,
		"quarterFluctuation": 4.0,
	}
}

func TestPredictSimulatedScenarios(t *testing.T) {
	service := NewService()

	tests := []struct {
		name       string
		features   map[string]interface{}
		class      Class
		confidence float64
		loanRange  string
	}{
		{
			name:       "excellent applicant",
			features:   excellentApplicant(),
			class:      VeryGood,
			confidence: 95.0,
			loanRange:  "$50,000 - $200,000",
		},
		{
			name:       "empty payload scores the zero baseline",
			features:   map[string]interface{}{},
			class:      Normal,
			confidence: 78.0,
			loanRange:  "$10,000 - $50,000",
		},
		{
			name: "poor applicant",
			features: map[string]interface{}{
				"creditShort":        -1.0,
				"creditLong":         -1.0,
				"cph":                -1.0,
				"ctl":                -1.0,
				"aph":                -1.0,
				"atl":                -1.0,
				"quarterFluctuation": -1.0,
			},
			class:      VeryBad,
			confidence: 62.8,
			loanRange:  "Not eligible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.Predict(tt.features, "", nil)
			require.NoError(t, err)

			assert.Equal(t, tt.class, result.FinalPrediction)
			assert.InDelta(t, tt.confidence, result.FinalConfidence, 0.001)
			assert.Equal(t, tt.loanRange, result.LoanRange)
			assert.Equal(t, DefaultServiceType, result.ServiceType)
			assert.Len(t, result.ModelVotes, 4)
		})
	}
}

func TestPredictDeterministic(t *testing.T) {
	service := NewService()

	first, err := service.Predict(excellentApplicant(), "", nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := service.Predict(excellentApplicant(), "", nil)
		require.NoError(t, err)
		assert.Equal(t, first.FinalPrediction, again.FinalPrediction)
		assert.Equal(t, first.FinalConfidence, again.FinalConfidence)
		assert.Equal(t, first.ModelVotes, again.ModelVotes)
	}
}

func TestPredictSelectedModels(t *testing.T) {
	service := NewService()

	result, err := service.Predict(excellentApplicant(), "", []string{"xgboost", "knn"})
	require.NoError(t, err)

	require.Len(t, result.ModelVotes, 2)
	assert.Contains(t, result.ModelVotes, "xgboost")
	assert.Contains(t, result.ModelVotes, "knn")

	// Simulated mode takes the final class from the rule scorer, selection
	// only changes which votes are reported
	assert.Equal(t, VeryGood, result.FinalPrediction)
	assert.InDelta(t, 95.0, result.FinalConfidence, 0.001)
}

func TestPredictUnknownModelsIgnored(t *testing.T) {
	service := NewService()

	result, err := service.Predict(excellentApplicant(), "", []string{"xgboost", "transformer"})
	require.NoError(t, err)

	require.Len(t, result.ModelVotes, 1)
	assert.Contains(t, result.ModelVotes, "xgboost")
}

func TestPredictModelsUsedEchoesSelection(t *testing.T) {
	service := NewService()

	// An empty selection resolves to the default set
	result, err := service.Predict(excellentApplicant(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModels(), result.ModelsUsed)

	// An explicit selection is echoed as submitted, unknown names included
	result, err = service.Predict(excellentApplicant(), "", []string{"knn", "transformer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"knn", "transformer"}, result.ModelsUsed)
}

func TestPredictServiceTypeEchoed(t *testing.T) {
	service := NewService()

	result, err := service.Predict(excellentApplicant(), "mortgage_screening", nil)
	require.NoError(t, err)
	assert.Equal(t, "mortgage_screening", result.ServiceType)
}

func TestPredictInvalidInput(t *testing.T) {
	service := NewService()

	_, err := service.Predict(map[string]interface{}{"cph": "high"}, "", nil)
	require.Error(t, err)

	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "cph", invalid.Field)
}

// staticVoteSource returns a fixed vote table regardless of input.
type staticVoteSource struct {
	votes map[string]ModelVote
}

func (s *staticVoteSource) Votes(_ ApplicationFeatures, _ ModelVote, _ []string) map[string]ModelVote {
	return s.votes
}

func TestPredictVoteDecidesWithSource(t *testing.T) {
	// With a trained vote source the weighted vote overrides the rule
	// scorer's class.
	source := &staticVoteSource{votes: map[string]ModelVote{
		"xgboost":       {Prediction: VeryBad, Confidence: 68},
		"random_forest": {Prediction: VeryBad, Confidence: 66},
		"logistic":      {Prediction: Normal, Confidence: 77},
		"knn":           {Prediction: Normal, Confidence: 78},
	}}
	service := NewServiceWithSource(source)

	result, err := service.Predict(excellentApplicant(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, VeryBad, result.FinalPrediction)
	assert.Equal(t, "Not eligible", result.LoanRange)

	expected := (68*0.4 + 66*0.3 + 77*0.2 + 78*0.1) / 1.0
	assert.InDelta(t, expected, result.FinalConfidence, 0.05)
}

func TestPredictVoteSourceEmptyFallsBack(t *testing.T) {
	service := NewServiceWithSource(&staticVoteSource{votes: map[string]ModelVote{}})

	result, err := service.Predict(excellentApplicant(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, Normal, result.FinalPrediction)
	assert.InDelta(t, 75.0, result.FinalConfidence, 0.001)
}
