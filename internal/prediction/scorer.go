package prediction

import "math"

// Point awards per feature, indexed exact-one / exact-zero / otherwise.
var (
	creditPoints  = [3]float64{25, 15, 5}
	cphPoints     = [3]float64{20, 10, 2}
	ctlPoints     = [3]float64{15, 8, 2}
	averagePoints = [3]float64{10, 5, 1}
)

// Classification thresholds over the additive score (max 110).
var (
	veryGoodThreshold float64 = 85
	normalThreshold   float64 = 50
	confidenceCap     float64 = 95.0
)

// RuleScorer scores an application with the additive point table and maps
// the score to an eligibility class with a confidence value.
type RuleScorer struct{}

// NewRuleScorer creates a new rule scorer.
func NewRuleScorer() *RuleScorer {
	return &RuleScorer{}
}

// Score computes the additive point total for the features.
func (s *RuleScorer) Score(f ApplicationFeatures) float64 {
	score := scoreTernary(f.CreditShort, creditPoints)
	score += scoreTernary(f.CreditLong, creditPoints)
	score += scoreTernary(f.CPH, cphPoints)
	score += scoreTernary(f.CTL, ctlPoints)
	score += scoreAverage(f.APH, averagePoints)
	score += scoreAverage(f.ATL, averagePoints)
	score += scoreFluctuation(f.QuarterFluctuation)
	return score
}

// Classify maps a score to its class and confidence. Confidence is capped
// at 95 and rounded to one decimal.
func (s *RuleScorer) Classify(score float64) (Class, float64) {
	var class Class
	var confidence float64

	switch {
	case score >= veryGoodThreshold:
		class = VeryGood
		confidence = 90 + (score-veryGoodThreshold)*0.2
	case score >= normalThreshold:
		class = Normal
		confidence = 75 + (score-normalThreshold)*0.3
	default:
		class = VeryBad
		confidence = 60 + score*0.2
	}

	return class, round1(math.Min(confidence, confidenceCap))
}

// Factors derives the qualitative labels from the same branch logic the
// point table uses, so the labels cannot drift from the scoring rules.
func (s *RuleScorer) Factors(f ApplicationFeatures) Factors {
	return Factors{
		CreditScore:          gradeTernary(f.CreditShort),
		CreditPaymentHistory: gradeTernary(f.CPH),
		AvgPaymentHistory:    gradeAverage(f.APH),
	}
}

// scoreTernary awards points on the exact-one / exact-zero / otherwise split.
func scoreTernary(v float64, points [3]float64) float64 {
	switch {
	case v == 1:
		return points[0]
	case v == 0:
		return points[1]
	default:
		return points[2]
	}
}

// scoreAverage awards points for averaged history features. The exact-one
// branch must be checked before the >= 0 branch.
func scoreAverage(v float64, points [3]float64) float64 {
	switch {
	case v == 1:
		return points[0]
	case v >= 0:
		return points[1]
	default:
		return points[2]
	}
}

func scoreFluctuation(v float64) float64 {
	switch {
	case v > 3:
		return 5
	case v >= 0:
		return 2
	default:
		return -2
	}
}

func gradeTernary(v float64) string {
	switch {
	case v == 1:
		return "Excellent"
	case v == 0:
		return "Good"
	default:
		return "Needs Improvement"
	}
}

func gradeAverage(v float64) string {
	switch {
	case v == 1:
		return "Excellent"
	case v >= 0:
		return "Good"
	default:
		return "Needs Improvement"
	}
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
