package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// AIUsageService tracks provider calls made during question generation.
type AIUsageService struct {
	db *gorm.DB
}

func NewAIUsageService(db *gorm.DB) *AIUsageService {
	return &AIUsageService{db: db}
}

// Record saves a usage log entry asynchronously so a slow insert never
// delays a generation run.
func (s *AIUsageService) Record(entry *models.AIUsageLog) {
	go func() {
		if err := s.db.Create(entry).Error; err != nil {
			logger.Warnf("failed to record AI usage: %v", err)
		}
	}()
}

// usageWindow scopes a query to the date range and, when set, one country.
// Dates are YYYY-MM-DD; the end date is inclusive.
func usageWindow(startDate, endDate, country string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if startDate != "" {
			q = q.Where("created_at >= ?", startDate)
		}
		if endDate != "" {
			q = q.Where("created_at <= ?", endDate+" 23:59:59")
		}
		if country != "" {
			q = q.Where("country = ?", country)
		}
		return q
	}
}

// UsageStats holds aggregated provider call statistics.
type UsageStats struct {
	TotalCalls      int64   `json:"total_calls"`
	TotalCandidates int64   `json:"total_candidates"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	SuccessRate     float64 `json:"success_rate"`
	SuccessCount    int64   `json:"success_count"`
	FailureCount    int64   `json:"failure_count"`
}

// GetStats returns aggregated usage statistics for the given time range,
// optionally filtered to one country.
func (s *AIUsageService) GetStats(startDate, endDate, country string) (*UsageStats, error) {
	var stats UsageStats
	err := s.db.Model(&models.AIUsageLog{}).
		Scopes(usageWindow(startDate, endDate, country)).
		Select(
			"COUNT(*) as total_calls, " +
				"COALESCE(SUM(candidates), 0) as total_candidates, " +
				"COALESCE(AVG(latency_ms), 0) as avg_latency_ms, " +
				"COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0) as success_count, " +
				"COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) as failure_count",
		).Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	if stats.TotalCalls > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalCalls) * 100
	}
	return &stats, nil
}

// DailyUsage holds provider call counts for a single day.
type DailyUsage struct {
	Date         string `json:"date"`
	Calls        int    `json:"calls"`
	Candidates   int    `json:"candidates"`
	AvgLatencyMs int    `json:"avg_latency_ms"`
}

// GetDailyTrend returns daily aggregated usage for charting.
func (s *AIUsageService) GetDailyTrend(startDate, endDate, country string) ([]DailyUsage, error) {
	results := []DailyUsage{}
	err := s.db.Model(&models.AIUsageLog{}).
		Scopes(usageWindow(startDate, endDate, country)).
		Select(
			"DATE(created_at) as date, " +
				"COUNT(*) as calls, " +
				"COALESCE(SUM(candidates), 0) as candidates, " +
				"COALESCE(AVG(latency_ms), 0) as avg_latency_ms",
		).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ProviderUsage holds usage data grouped by provider and model.
type ProviderUsage struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Calls        int     `json:"calls"`
	Candidates   int     `json:"candidates"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
}

// GetProviderBreakdown returns usage grouped by provider and model, most
// called first. Admins use this to spot a provider that keeps failing over
// to the next in the chain.
func (s *AIUsageService) GetProviderBreakdown(startDate, endDate string) ([]ProviderUsage, error) {
	results := []ProviderUsage{}
	err := s.db.Model(&models.AIUsageLog{}).
		Scopes(usageWindow(startDate, endDate, "")).
		Select(
			"provider, model, " +
				"COUNT(*) as calls, " +
				"COALESCE(SUM(candidates), 0) as candidates, " +
				"COALESCE(AVG(latency_ms), 0) as avg_latency_ms, " +
				"COALESCE(AVG(CASE WHEN success = 1 THEN 100.0 ELSE 0.0 END), 0) as success_rate",
		).
		Group("provider, model").
		Order("calls DESC").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CleanupBefore deletes usage logs older than the given time.
func (s *AIUsageService) CleanupBefore(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.AIUsageLog{})
	return result.RowsAffected, result.Error
}
