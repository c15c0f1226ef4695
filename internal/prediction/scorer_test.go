package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreExtremes(t *testing.T) {
	scorer := NewRuleScorer()

	tests := []struct {
		name     string
		features ApplicationFeatures
		expected float64
	}{
		{
			name: "all excellent features reach the maximum score",
			features: ApplicationFeatures{
				CreditShort:        1,
				CreditLong:         1,
				CPH:                1,
				CTL:                1,
				APH:                1,
				ATL:                1,
				QuarterFluctuation: 4,
			},
			expected: 110,
		},
		{
			name:     "all zero features land in the middle band",
			features: ApplicationFeatures{},
			expected: 60,
		},
		{
			name: "all negative features score near the floor",
			features: ApplicationFeatures{
				CreditShort:        -1,
				CreditLong:         -1,
				CPH:                -1,
				CTL:                -1,
				APH:                -1,
				ATL:                -1,
				QuarterFluctuation: -1,
			},
			expected: 14,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.Score(tt.features))
		})
	}
}

func TestScorePerFeatureBranches(t *testing.T) {
	scorer := NewRuleScorer()

	// Relative to the all-zero baseline of 60, flipping one feature moves
	// the score by the difference between its branch awards.
	baseline := scorer.Score(ApplicationFeatures{})

	tests := []struct {
		name     string
		features ApplicationFeatures
		delta    float64
	}{
		{"creditShort exact one", ApplicationFeatures{CreditShort: 1}, 10},
		{"creditShort negative", ApplicationFeatures{CreditShort: -2}, -10},
		{"cph exact one", ApplicationFeatures{CPH: 1}, 10},
		{"cph fractional", ApplicationFeatures{CPH: 0.5}, -8},
		{"ctl exact one", ApplicationFeatures{CTL: 1}, 7},
		{"aph positive fraction stays in middle branch", ApplicationFeatures{APH: 0.5}, 0},
		{"aph negative", ApplicationFeatures{APH: -0.5}, -4},
		{"fluctuation above three", ApplicationFeatures{QuarterFluctuation: 3.5}, 3},
		{"fluctuation exactly three", ApplicationFeatures{QuarterFluctuation: 3}, 0},
		{"fluctuation negative", ApplicationFeatures{QuarterFluctuation: -0.1}, -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, baseline+tt.delta, scorer.Score(tt.features))
		})
	}
}

func TestClassifyThresholds(t *testing.T) {
	scorer := NewRuleScorer()

	tests := []struct {
		name       string
		score      float64
		class      Class
		confidence float64
	}{
		{"maximum score", 110, VeryGood, 95.0},
		{"very good boundary", 85, VeryGood, 90.0},
		{"just below very good", 84.9, Normal, 85.5},
		{"normal boundary", 50, Normal, 75.0},
		{"just below normal", 49.9, VeryBad, 70.0},
		{"middle band", 60, Normal, 78.0},
		{"low score", 14, VeryBad, 62.8},
		{"zero score", 0, VeryBad, 60.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, confidence := scorer.Classify(tt.score)
			assert.Equal(t, tt.class, class)
			assert.InDelta(t, tt.confidence, confidence, 0.001)
		})
	}
}

func TestClassifyConfidenceCap(t *testing.T) {
	scorer := NewRuleScorer()

	// Scores past 110 cannot occur from the point table, but the cap must
	// hold regardless of input.
	_, confidence := scorer.Classify(200)
	assert.Equal(t, 95.0, confidence)
}

func TestFactorsFollowBranchLogic(t *testing.T) {
	scorer := NewRuleScorer()

	tests := []struct {
		name     string
		features ApplicationFeatures
		expected Factors
	}{
		{
			name:     "all excellent",
			features: ApplicationFeatures{CreditShort: 1, CPH: 1, APH: 1},
			expected: Factors{
				CreditScore:          "Excellent",
				CreditPaymentHistory: "Excellent",
				AvgPaymentHistory:    "Excellent",
			},
		},
		{
			name:     "zeros grade as good",
			features: ApplicationFeatures{},
			expected: Factors{
				CreditScore:          "Good",
				CreditPaymentHistory: "Good",
				AvgPaymentHistory:    "Good",
			},
		},
		{
			name:     "negatives need improvement",
			features: ApplicationFeatures{CreditShort: -1, CPH: -1, APH: -1},
			expected: Factors{
				CreditScore:          "Needs Improvement",
				CreditPaymentHistory: "Needs Improvement",
				AvgPaymentHistory:    "Needs Improvement",
			},
		},
		{
			name:     "averaged history accepts fractions as good",
			features: ApplicationFeatures{CreditShort: 0.5, CPH: 0.5, APH: 0.5},
			expected: Factors{
				CreditScore:          "Needs Improvement",
				CreditPaymentHistory: "Needs Improvement",
				AvgPaymentHistory:    "Good",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.Factors(tt.features))
		})
	}
}
