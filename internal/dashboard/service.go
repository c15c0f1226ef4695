package dashboard

import (
	"fmt"
	"time"

	"github.com/loansight/loansight/internal/database"
	"github.com/loansight/loansight/internal/models"
)

// Stats summarizes prediction activity for the dashboard.
type Stats struct {
	TotalPredictions       int            `json:"total_predictions"`
	ApprovalRate           float64        `json:"approval_rate"`
	AvgConfidence          float64        `json:"avg_confidence"`
	ActiveUsers            int            `json:"active_users"`
	PredictionDistribution map[string]int `json:"prediction_distribution"`
}

// TrendPoint is one month of prediction activity.
type TrendPoint struct {
	Month         string  `json:"month"`
	Predictions   int     `json:"predictions"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// FeatureImportanceRow is one feature's importance for a model.
type FeatureImportanceRow struct {
	FeatureName     string    `json:"feature_name"`
	ImportanceScore float64   `json:"importance_score"`
	EvaluationDate  time.Time `json:"evaluation_date,omitempty"`
}

// Service answers dashboard queries with a TTL cache in front of the
// aggregate SQL.
type Service struct {
	db    *database.DB
	cache *dashboardCache
}

// NewService creates a new dashboard service
func NewService(db *database.DB) *Service {
	return &Service{
		db:    db,
		cache: newDashboardCache(5 * time.Minute),
	}
}

// GetStats computes the headline dashboard numbers.
func (s *Service) GetStats() (*Stats, error) {
	if cached, found := s.cache.getStats(); found {
		return cached, nil
	}

	stats := &Stats{
		PredictionDistribution: make(map[string]int),
	}

	err := s.db.QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&stats.TotalPredictions)
	if err != nil {
		return nil, fmt.Errorf("failed to count predictions: %w", err)
	}

	if stats.TotalPredictions > 0 {
		var approved int
		err = s.db.QueryRow(`SELECT COUNT(*) FROM predictions WHERE final_prediction = 'Very_Good'`).Scan(&approved)
		if err != nil {
			return nil, fmt.Errorf("failed to count approvals: %w", err)
		}
		stats.ApprovalRate = float64(approved) / float64(stats.TotalPredictions) * 100

		err = s.db.QueryRow(`SELECT AVG(final_confidence) FROM predictions`).Scan(&stats.AvgConfidence)
		if err != nil {
			return nil, fmt.Errorf("failed to average confidence: %w", err)
		}
	}

	since := time.Now().AddDate(0, 0, -30)
	err = s.db.QueryRow(`
		SELECT COUNT(DISTINCT user_id) FROM loan_applications
		WHERE user_id IS NOT NULL AND application_date >= ?
	`, since).Scan(&stats.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT final_prediction, COUNT(*) FROM predictions GROUP BY final_prediction
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var class string
		var count int
		if err := rows.Scan(&class, &count); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		stats.PredictionDistribution[class] = count
	}

	s.cache.setStats(stats)
	return stats, nil
}

// GetMonthlyTrends returns per-month prediction counts and confidence for
// the most recent months.
func (s *Service) GetMonthlyTrends(months int) ([]TrendPoint, error) {
	if months <= 0 {
		months = 6
	}
	if months > 24 {
		months = 24
	}

	if cached, found := s.cache.getTrends(months); found {
		return cached, nil
	}

	rows, err := s.db.Query(`
		SELECT strftime('%Y-%m', prediction_date) AS month,
			COUNT(*) AS predictions,
			AVG(final_confidence) AS avg_confidence
		FROM predictions
		GROUP BY month
		ORDER BY month DESC
		LIMIT ?
	`, months)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var trends []TrendPoint
	for rows.Next() {
		var point TrendPoint
		if err := rows.Scan(&point.Month, &point.Predictions, &point.AvgConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		trends = append(trends, point)
	}

	// Oldest first for charting
	for i, j := 0, len(trends)-1; i < j; i, j = i+1, j-1 {
		trends[i], trends[j] = trends[j], trends[i]
	}

	s.cache.setTrends(months, trends)
	return trends, nil
}

// GetModelPerformance returns the most recent evaluation rows.
func (s *Service) GetModelPerformance() ([]database.ModelPerformance, error) {
	if cached, found := s.cache.getPerformance(); found {
		return cached, nil
	}

	rows, err := s.db.Query(`
		SELECT id, model_name, accuracy, precision_score, recall_score, f1_score,
			rmse, dataset_size, notes, evaluation_date
		FROM model_performance
		ORDER BY evaluation_date DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query model performance: %w", err)
	}
	defer rows.Close()

	var entries []database.ModelPerformance
	for rows.Next() {
		var entry database.ModelPerformance
		err := rows.Scan(
			&entry.ID, &entry.ModelName, &entry.Accuracy, &entry.PrecisionScore,
			&entry.RecallScore, &entry.F1Score, &entry.RMSE, &entry.DatasetSize,
			&entry.Notes, &entry.EvaluationDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan performance row: %w", err)
		}
		entries = append(entries, entry)
	}

	s.cache.setPerformance(entries)
	return entries, nil
}

// GetFeatureImportance returns stored importance rows for a model, falling
// back to the published defaults when none exist.
func (s *Service) GetFeatureImportance(modelName string) ([]FeatureImportanceRow, error) {
	if modelName == "" {
		modelName = "xgboost"
	}

	if cached, found := s.cache.getImportance(modelName); found {
		return cached, nil
	}

	rows, err := s.db.Query(`
		SELECT feature_name, importance_score, evaluation_date
		FROM feature_importance
		WHERE model_name = ?
		ORDER BY importance_score DESC
	`, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature importance: %w", err)
	}
	defer rows.Close()

	var entries []FeatureImportanceRow
	for rows.Next() {
		var entry FeatureImportanceRow
		if err := rows.Scan(&entry.FeatureName, &entry.ImportanceScore, &entry.EvaluationDate); err != nil {
			return nil, fmt.Errorf("failed to scan importance row: %w", err)
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		for _, fw := range models.DefaultFeatureImportance() {
			entries = append(entries, FeatureImportanceRow{
				FeatureName:     fw.Feature,
				ImportanceScore: fw.Importance,
			})
		}
	}

	s.cache.setImportance(modelName, entries)
	return entries, nil
}

// GetCacheStats returns dashboard cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.stats()
}
