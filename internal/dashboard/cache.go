package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/loansight/loansight/internal/cache"
	"github.com/loansight/loansight/internal/database"
)

// dashboardCache wraps the shared TTL cache with typed accessors for each
// dashboard query.
type dashboardCache struct {
	cache *cache.Cache
}

func newDashboardCache(ttl time.Duration) *dashboardCache {
	return &dashboardCache{cache: cache.NewCache(ttl)}
}

func (dc *dashboardCache) getStats() (*Stats, bool) {
	var stats Stats
	if !dc.get("dashboard:stats", &stats) {
		return nil, false
	}
	return &stats, true
}

func (dc *dashboardCache) setStats(stats *Stats) {
	dc.set("dashboard:stats", stats)
}

func (dc *dashboardCache) getTrends(months int) ([]TrendPoint, bool) {
	var trends []TrendPoint
	if !dc.get(fmt.Sprintf("dashboard:trends:%d", months), &trends) {
		return nil, false
	}
	return trends, true
}

func (dc *dashboardCache) setTrends(months int, trends []TrendPoint) {
	dc.set(fmt.Sprintf("dashboard:trends:%d", months), trends)
}

func (dc *dashboardCache) getPerformance() ([]database.ModelPerformance, bool) {
	var entries []database.ModelPerformance
	if !dc.get("dashboard:performance", &entries) {
		return nil, false
	}
	return entries, true
}

func (dc *dashboardCache) setPerformance(entries []database.ModelPerformance) {
	dc.set("dashboard:performance", entries)
}

func (dc *dashboardCache) getImportance(model string) ([]FeatureImportanceRow, bool) {
	var entries []FeatureImportanceRow
	if !dc.get("dashboard:importance:"+model, &entries) {
		return nil, false
	}
	return entries, true
}

func (dc *dashboardCache) setImportance(model string, entries []FeatureImportanceRow) {
	dc.set("dashboard:importance:"+model, entries)
}

func (dc *dashboardCache) get(key string, out interface{}) bool {
	data, found := dc.cache.Get(key)
	if !found {
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		slog.Error("Failed to unmarshal cached dashboard data", "error", err, "key", key)
		return false
	}

	slog.Debug("Dashboard cache hit", "key", key)
	return true
}

func (dc *dashboardCache) set(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("Failed to marshal dashboard data for cache", "error", err, "key", key)
		return
	}

	dc.cache.Set(key, data)
}

func (dc *dashboardCache) stats() map[string]interface{} {
	return dc.cache.Stats()
}
