package prediction

import (
	"math"
	"time"
)

// loanRanges maps each class to the eligible loan range shown to the user.
var loanRanges = map[Class]string{
	VeryGood: "$50,000 - $200,000",
	Normal:   "$10,000 - $50,000",
	VeryBad:  "Not eligible",
}

// DefaultServiceType identifies the standard loan eligibility flow.
const DefaultServiceType = "loan_prediction"

// Service orchestrates a prediction: normalize, score, classify, collect
// per-model votes and assemble the final result.
type Service struct {
	scorer     *RuleScorer
	aggregator *EnsembleAggregator
	source     VoteSource

	// voteDecides controls whether the final class comes from the weighted
	// vote over the source's votes or directly from the rule scorer.
	voteDecides bool
}

// NewService builds a service whose final class comes from the rule scorer,
// with per-model votes simulated around it.
func NewService() *Service {
	return &Service{
		scorer:     NewRuleScorer(),
		aggregator: NewEnsembleAggregator(),
		source:     NewRuleVoteSource(),
	}
}

// NewServiceWithSource builds a service whose final class is decided by
// weighted voting over the votes the source produces.
func NewServiceWithSource(source VoteSource) *Service {
	return &Service{
		scorer:      NewRuleScorer(),
		aggregator:  NewEnsembleAggregator(),
		source:      source,
		voteDecides: true,
	}
}

// Predict runs the full pipeline for a raw feature payload. Unknown model
// names in selected are ignored; an empty selection uses the default set.
func (s *Service) Predict(raw map[string]interface{}, serviceType string, selected []string) (*PredictionResult, error) {
	start := time.Now()

	features, err := NormalizeFeatures(raw)
	if err != nil {
		return nil, err
	}

	if serviceType == "" {
		serviceType = DefaultServiceType
	}
	if len(selected) == 0 {
		selected = DefaultModels()
	}

	score := s.scorer.Score(features)
	class, confidence := s.scorer.Classify(score)
	base := ModelVote{Prediction: class, Confidence: confidence}

	votes := s.source.Votes(features, base, selected)

	finalClass, finalConfidence := class, confidence
	if s.voteDecides {
		finalClass, finalConfidence = s.aggregator.WeightedVote(votes)
	}
	finalConfidence = round1(math.Min(finalConfidence, confidenceCap))

	return &PredictionResult{
		FinalPrediction:  finalClass,
		FinalConfidence:  finalConfidence,
		ModelVotes:       votes,
		ModelsUsed:       selected,
		LoanRange:        loanRanges[finalClass],
		Factors:          s.scorer.Factors(features),
		ServiceType:      serviceType,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}
