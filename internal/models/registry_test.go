package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loansight/loansight/internal/prediction"
)

func writeModelFile(t *testing.T, dir, name string, params ModelParams) {
	t.Helper()

	data, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644))
}

// separableParams builds parameters that score the creditShort feature
// strongly toward VeryGood and away from VeryBad.
func separableParams() ModelParams {
	return ModelParams{
		Type:    "logistic_regression",
		Version: "2.1",
		Classes: []prediction.Class{prediction.VeryGood, prediction.Normal, prediction.VeryBad},
		Weights: [][]float64{
			{5, 0, 0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0, 0, 0},
			{-5, 0, 0, 0, 0, 0, 0},
		},
		Bias: []float64{0, 0, 0},
	}
}

func TestNewRegistryEmptyDir(t *testing.T) {
	registry := NewRegistry(t.TempDir())

	assert.False(t, registry.HasModels())
	assert.Empty(t, registry.Loaded())
}

func TestNewRegistryLoadsParameterFiles(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "xgboost", separableParams())
	writeModelFile(t, dir, "knn", separableParams())

	registry := NewRegistry(dir)

	assert.True(t, registry.HasModels())
	assert.Equal(t, []string{"xgboost", "knn"}, registry.Loaded())
}

func TestNewRegistrySkipsInvalidShapes(t *testing.T) {
	dir := t.TempDir()

	bad := separableParams()
	bad.Weights = [][]float64{{1, 2}} // wrong feature count and class count
	writeModelFile(t, dir, "xgboost", bad)

	registry := NewRegistry(dir)
	assert.False(t, registry.HasModels())
}

func TestNewRegistryIgnoresUnknownFiles(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "transformer", separableParams())

	registry := NewRegistry(dir)
	assert.False(t, registry.HasModels())
}

func TestVotesInference(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "xgboost", separableParams())

	registry := NewRegistry(dir)
	base := prediction.ModelVote{Prediction: prediction.Normal, Confidence: 78}

	votes := registry.Votes(
		prediction.ApplicationFeatures{CreditShort: 1},
		base,
		[]string{"xgboost"},
	)

	require.Contains(t, votes, "xgboost")
	assert.Equal(t, prediction.VeryGood, votes["xgboost"].Prediction)
	assert.Greater(t, votes["xgboost"].Confidence, 90.0)
}

func TestVotesMissingModelFallsBackToBase(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "xgboost", separableParams())

	registry := NewRegistry(dir)
	base := prediction.ModelVote{Prediction: prediction.Normal, Confidence: 78}

	votes := registry.Votes(prediction.ApplicationFeatures{}, base, []string{"xgboost", "knn"})

	require.Contains(t, votes, "knn")
	assert.Equal(t, prediction.Normal, votes["knn"].Prediction)
	assert.Equal(t, 85.0, votes["knn"].Confidence)
}

func TestVotesSkipsUnknownNames(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	base := prediction.ModelVote{Prediction: prediction.Normal, Confidence: 78}

	votes := registry.Votes(prediction.ApplicationFeatures{}, base, []string{"transformer"})
	assert.Empty(t, votes)
}

func TestInfoMarksLoadedModels(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "logistic", separableParams())

	registry := NewRegistry(dir)
	infos := registry.Info()
	require.Len(t, infos, len(KnownModels))

	byName := make(map[string]ModelInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}

	assert.True(t, byName["logistic"].Loaded)
	assert.Equal(t, "logistic_regression", byName["logistic"].Type)
	assert.Equal(t, "2.1", byName["logistic"].Version)

	assert.False(t, byName["xgboost"].Loaded)
	assert.Equal(t, "rule_simulated", byName["xgboost"].Type)
}

func TestDefaultFeatureImportanceIsACopy(t *testing.T) {
	first := DefaultFeatureImportance()
	first[0].Importance = 0

	second := DefaultFeatureImportance()
	assert.Equal(t, 0.285, second[0].Importance)
	require.Len(t, second, 5)
}
