package prediction

import "fmt"

// Class is an eligibility class assigned to a loan application.
type Class string

const (
	VeryGood Class = "Very_Good"
	Normal   Class = "Normal"
	VeryBad  Class = "Very_Bad"
)

// classOrder fixes the tie-break order for weighted voting.
var classOrder = []Class{VeryGood, Normal, VeryBad}

// ApplicationFeatures holds the normalized numeric features of an application
type ApplicationFeatures struct {
	CreditShort        float64 `json:"creditShort"`
	CreditLong         float64 `json:"creditLong"`
	CPH                float64 `json:"cph"`
	CTL                float64 `json:"ctl"`
	APH                float64 `json:"aph"`
	ATL                float64 `json:"atl"`
	QuarterFluctuation float64 `json:"quarterFluctuation"`
}

// ModelVote is a single model's prediction for an application.
type ModelVote struct {
	Prediction Class   `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Factors are qualitative labels derived from the raw feature values.
type Factors struct {
	CreditScore          string `json:"creditScore"`
	CreditPaymentHistory string `json:"creditPaymentHistory"`
	AvgPaymentHistory    string `json:"avgPaymentHistory"`
}

// PredictionResult is the full outcome of a prediction request.
type PredictionResult struct {
	FinalPrediction  Class                `json:"final_prediction"`
	FinalConfidence  float64              `json:"final_confidence"`
	ModelVotes       map[string]ModelVote `json:"model_predictions"`
	ModelsUsed       []string             `json:"models_used"`
	LoanRange        string               `json:"loan_range"`
	Factors          Factors              `json:"factors"`
	ServiceType      string               `json:"service_type"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
}

// InvalidInputError reports a feature value that could not be interpreted
// as a number. Field names the offending feature.
type InvalidInputError struct {
	Field string
	Value interface{}
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid value for feature %q: %v", e.Field, e.Value)
}
