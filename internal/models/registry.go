package models

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/loansight/loansight/internal/prediction"
)

// KnownModels lists every model the registry will try to load from disk.
var KnownModels = []string{"xgboost", "random_forest", "logistic", "knn", "mlp"}

// defaultConfidence is used when a model cannot produce a usable probability.
const defaultConfidence = 85.0

// ModelParams holds the trained parameters for one model: a linear score
// per class over the seven features, resolved by softmax.
type ModelParams struct {
	Type    string             `json:"type"`
	Version string             `json:"version"`
	Classes []prediction.Class `json:"classes"`
	Weights [][]float64        `json:"weights"`
	Bias    []float64          `json:"bias"`
}

// valid checks the parameter shapes line up with the feature vector.
func (p *ModelParams) valid() bool {
	if len(p.Classes) == 0 || len(p.Weights) != len(p.Classes) {
		return false
	}
	if len(p.Bias) != 0 && len(p.Bias) != len(p.Classes) {
		return false
	}
	for _, row := range p.Weights {
		if len(row) != len(prediction.FeatureNames) {
			return false
		}
	}
	return true
}

// Registry loads trained model parameter files from a directory and serves
// per-model votes. A model whose file is missing stays unavailable; the
// registry degrades to the base classification for it.
type Registry struct {
	dir string

	mu     sync.RWMutex
	models map[string]*ModelParams
}

// NewRegistry creates a registry rooted at dir and loads whatever model
// files are present. Load failures are logged, not fatal.
func NewRegistry(dir string) *Registry {
	r := &Registry{
		dir:    dir,
		models: make(map[string]*ModelParams),
	}

	for _, name := range KnownModels {
		params, err := r.loadModel(name)
		if err != nil {
			slog.Warn("Model parameters unavailable", "model", name, "error", err)
			continue
		}
		if params != nil {
			r.models[name] = params
			slog.Info("Model parameters loaded", "model", name, "type", params.Type, "version", params.Version)
		}
	}

	return r
}

// loadModel reads one parameter file. A missing file is not an error; the
// model is simply not available.
func (r *Registry) loadModel(name string) (*ModelParams, error) {
	filePath := filepath.Join(r.dir, fmt.Sprintf("%s.json", name))

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var params ModelParams
	if err := json.NewDecoder(file).Decode(&params); err != nil {
		return nil, fmt.Errorf("failed to decode model parameters: %w", err)
	}

	if !params.valid() {
		return nil, fmt.Errorf("model parameter shapes do not match %d features", len(prediction.FeatureNames))
	}

	return &params, nil
}

// Loaded returns the names of models with parameters on disk.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for _, name := range KnownModels {
		if _, ok := r.models[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// HasModels reports whether any trained parameters were loaded.
func (r *Registry) HasModels() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models) > 0
}

// Votes implements prediction.VoteSource. Models with loaded parameters
// run real inference; models without fall back to the base classification
// at the default confidence. Unknown names are skipped.
func (r *Registry) Votes(features prediction.ApplicationFeatures, base prediction.ModelVote, selected []string) map[string]prediction.ModelVote {
	r.mu.RLock()
	defer r.mu.RUnlock()

	votes := make(map[string]prediction.ModelVote, len(selected))

	for _, name := range selected {
		if !isKnownModel(name) {
			continue
		}

		params, ok := r.models[name]
		if !ok {
			votes[name] = prediction.ModelVote{Prediction: base.Prediction, Confidence: defaultConfidence}
			continue
		}

		votes[name] = infer(params, features)
	}

	return votes
}

// infer scores the feature vector against each class and resolves the class
// probabilities with softmax. Confidence is the winning probability as a
// percentage, rounded to one decimal.
func infer(params *ModelParams, features prediction.ApplicationFeatures) prediction.ModelVote {
	vector := []float64{
		features.CreditShort,
		features.CreditLong,
		features.CPH,
		features.CTL,
		features.APH,
		features.ATL,
		features.QuarterFluctuation,
	}

	logits := make([]float64, len(params.Classes))
	for i, row := range params.Weights {
		sum := 0.0
		for j, w := range row {
			sum += w * vector[j]
		}
		if len(params.Bias) == len(params.Classes) {
			sum += params.Bias[i]
		}
		logits[i] = sum
	}

	probs := softmax(logits)

	bestIdx := 0
	for i := range probs {
		if probs[i] > probs[bestIdx] {
			bestIdx = i
		}
	}

	confidence := math.Round(probs[bestIdx]*1000) / 10
	if math.IsNaN(confidence) || confidence <= 0 {
		confidence = defaultConfidence
	}

	return prediction.ModelVote{
		Prediction: params.Classes[bestIdx],
		Confidence: confidence,
	}
}

// softmax with max subtraction for numeric stability.
func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}

	sum := 0.0
	probs := make([]float64, len(logits))
	for i, l := range logits {
		probs[i] = math.Exp(l - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func isKnownModel(name string) bool {
	for _, known := range KnownModels {
		if known == name {
			return true
		}
	}
	return false
}
