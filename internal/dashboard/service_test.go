package dashboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loansight/loansight/internal/database"
	"github.com/loansight/loansight/internal/prediction"
)

func newTestService(t *testing.T) (*Service, *database.Repository, *database.DB) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewService(db), database.NewRepository(db), db
}

func seedPrediction(t *testing.T, repo *database.Repository, userID string, class prediction.Class, confidence float64) {
	t.Helper()

	app := database.NewLoanApplication(userID, prediction.ApplicationFeatures{CreditShort: 1}, database.ApplicationDetails{})
	require.NoError(t, repo.CreateApplication(app))

	pred := database.NewPrediction(app.ID, &prediction.PredictionResult{
		FinalPrediction: class,
		FinalConfidence: confidence,
	})
	require.NoError(t, repo.SavePrediction(pred))
}

func seedUser(t *testing.T, repo *database.Repository, username string) *database.User {
	t.Helper()

	user := database.NewUser(username, username+"@example.com", database.HashPassword("pw123456"), "", "")
	require.NoError(t, repo.CreateUser(user))
	return user
}

func TestGetStatsEmptyDatabase(t *testing.T) {
	service, _, _ := newTestService(t)

	stats, err := service.GetStats()
	require.NoError(t, err)

	assert.Zero(t, stats.TotalPredictions)
	assert.Zero(t, stats.ApprovalRate)
	assert.Zero(t, stats.ActiveUsers)
	assert.Empty(t, stats.PredictionDistribution)
}

func TestGetStatsAggregates(t *testing.T) {
	service, repo, _ := newTestService(t)

	user := seedUser(t, repo, "alice")

	seedPrediction(t, repo, user.ID, prediction.VeryGood, 95.0)
	seedPrediction(t, repo, user.ID, prediction.Normal, 78.0)
	seedPrediction(t, repo, user.ID, prediction.Normal, 80.0)
	seedPrediction(t, repo, user.ID, prediction.VeryBad, 63.0)

	stats, err := service.GetStats()
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalPredictions)
	assert.InDelta(t, 25.0, stats.ApprovalRate, 0.001)
	assert.InDelta(t, 79.0, stats.AvgConfidence, 0.001)
	assert.Equal(t, 1, stats.ActiveUsers)

	assert.Equal(t, 1, stats.PredictionDistribution["Very_Good"])
	assert.Equal(t, 2, stats.PredictionDistribution["Normal"])
	assert.Equal(t, 1, stats.PredictionDistribution["Very_Bad"])
}

func TestGetStatsServedFromCache(t *testing.T) {
	service, repo, _ := newTestService(t)

	user := seedUser(t, repo, "bob")
	seedPrediction(t, repo, user.ID, prediction.Normal, 78.0)

	first, err := service.GetStats()
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalPredictions)

	// New rows are invisible until the cache entry expires
	seedPrediction(t, repo, user.ID, prediction.Normal, 78.0)

	second, err := service.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, second.TotalPredictions)
}

func TestGetMonthlyTrends(t *testing.T) {
	service, repo, _ := newTestService(t)

	user := seedUser(t, repo, "carol")
	seedPrediction(t, repo, user.ID, prediction.Normal, 78.0)
	seedPrediction(t, repo, user.ID, prediction.VeryGood, 95.0)

	trends, err := service.GetMonthlyTrends(6)
	require.NoError(t, err)

	require.Len(t, trends, 1)
	assert.Equal(t, time.Now().Format("2006-01"), trends[0].Month)
	assert.Equal(t, 2, trends[0].Predictions)
	assert.InDelta(t, 86.5, trends[0].AvgConfidence, 0.001)
}

func TestGetMonthlyTrendsClampsRange(t *testing.T) {
	service, _, _ := newTestService(t)

	// Out-of-range month counts are clamped, not rejected
	_, err := service.GetMonthlyTrends(-3)
	require.NoError(t, err)

	_, err = service.GetMonthlyTrends(1000)
	require.NoError(t, err)
}

func TestGetModelPerformance(t *testing.T) {
	service, _, db := newTestService(t)

	for i := 0; i < 3; i++ {
		_, err := db.Exec(`
			INSERT INTO model_performance (id, model_name, accuracy, precision_score,
				recall_score, f1_score, rmse, dataset_size, notes, evaluation_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, fmt.Sprintf("perf-%d", i), "xgboost", 0.91, 0.90, 0.89, 0.895, 0.12, 1000, "",
			time.Now().AddDate(0, 0, -i))
		require.NoError(t, err)
	}

	entries, err := service.GetModelPerformance()
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "perf-0", entries[0].ID)
	assert.Equal(t, "xgboost", entries[0].ModelName)
	assert.InDelta(t, 0.91, entries[0].Accuracy, 0.001)
}

func TestGetFeatureImportanceFromRows(t *testing.T) {
	service, _, db := newTestService(t)

	_, err := db.Exec(`
		INSERT INTO feature_importance (id, model_name, feature_name, importance_score, evaluation_date)
		VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)
	`,
		"fi-1", "knn", "Credit-Short", 0.31, time.Now(),
		"fi-2", "knn", "CPH", 0.22, time.Now())
	require.NoError(t, err)

	entries, err := service.GetFeatureImportance("knn")
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "Credit-Short", entries[0].FeatureName)
	assert.InDelta(t, 0.31, entries[0].ImportanceScore, 0.001)
}

func TestGetFeatureImportanceDefaults(t *testing.T) {
	service, _, _ := newTestService(t)

	// No stored rows falls back to the published table; an empty model
	// name means xgboost.
	entries, err := service.GetFeatureImportance("")
	require.NoError(t, err)

	require.Len(t, entries, 5)
	assert.Equal(t, "Credit-Short", entries[0].FeatureName)
	assert.InDelta(t, 0.285, entries[0].ImportanceScore, 0.001)
}

func TestGetCacheStats(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.GetStats()
	require.NoError(t, err)

	stats := service.GetCacheStats()
	assert.NotEmpty(t, stats)
}
