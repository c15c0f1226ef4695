package prediction

// VoteSource produces per-model votes for a scored application. The rule
// based source simulates votes around the base classification; a trained
// model registry produces independent votes per model.
type VoteSource interface {
	Votes(features ApplicationFeatures, base ModelVote, selected []string) map[string]ModelVote
}

// RuleVoteSource simulates votes by offsetting the rule scorer's base
// confidence per model.
type RuleVoteSource struct {
	aggregator *EnsembleAggregator
}

// NewRuleVoteSource creates the rule based vote source.
func NewRuleVoteSource() *RuleVoteSource {
	return &RuleVoteSource{aggregator: NewEnsembleAggregator()}
}

// Votes implements VoteSource.
func (r *RuleVoteSource) Votes(_ ApplicationFeatures, base ModelVote, selected []string) map[string]ModelVote {
	return r.aggregator.SimulateVotes(base, selected)
}
