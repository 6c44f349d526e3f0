package services

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// Metric is one heatmap cell for a market's reporting period.
type Metric struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`   // eur, count, percent, score
	Status string  `json:"status"` // ok, warn, alert
	Trend  string  `json:"trend,omitempty"`
}

// CountryMetrics is the read-only dashboard view for one (country, report
// date) pair. FocusAreas lists the categories whose metrics are in alert,
// usable as focus hints for generation.
type CountryMetrics struct {
	Country    string   `json:"country"`
	Entity     string   `json:"entity"`
	ReportDate string   `json:"report_date"`
	RiskLevel  string   `json:"risk_level"`
	Metrics    []Metric `json:"metrics"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// MetricsService aggregates report findings into per-country metrics. Trends
// compare against the previous month's report when it is available.
type MetricsService struct {
	reports *ReportService
	store   *QuestionnaireService
	sysCfg  *SystemConfigService
	cfg     config.GenerationConfig
}

func NewMetricsService(db *gorm.DB, cfg *config.Config) *MetricsService {
	return &MetricsService{
		reports: NewReportService(cfg.Reports.Dir),
		store:   NewQuestionnaireService(db),
		sysCfg:  NewSystemConfigService(db),
		cfg:     cfg.Generation,
	}
}

// CountryMetrics builds the metric set for one market and reporting date.
func (s *MetricsService) CountryMetrics(country string, reportDate time.Time) (*CountryMetrics, error) {
	report, err := s.reports.Load(country, reportDate)
	if err != nil {
		return nil, err
	}

	t := resolveThresholds(s.sysCfg, s.cfg)
	analysis := report.RiskAnalysis
	if analysis == nil {
		analysis = AnalyzeReport(report, t)
	}

	metrics := reportMetrics(report, analysis, t)

	// Trends need last month's report; missing history just means no arrows.
	if prev, err := s.reports.Load(country, previousPeriod(reportDate)); err == nil {
		prevAnalysis := prev.RiskAnalysis
		if prevAnalysis == nil {
			prevAnalysis = AnalyzeReport(prev, t)
		}
		applyTrends(metrics, reportMetrics(prev, prevAnalysis, t))
	} else {
		logger.Debug().Str("country", country).Msg("no previous report, skipping trends")
	}

	if m, err := s.completionMetric(country, reportDate); err == nil && m != nil {
		metrics = append(metrics, *m)
	}

	return &CountryMetrics{
		Country:    country,
		Entity:     report.Metadata.DeliveringEntityName,
		ReportDate: reportDate.Format(ReportDateLayout),
		RiskLevel:  analysis.RiskLevel,
		Metrics:    metrics,
		FocusAreas: focusAreasFromMetrics(metrics),
	}, nil
}

func reportMetrics(report *models.DQReport, analysis *models.RiskAnalysis, t AnalyzerThresholds) []Metric {
	totalDelinquent := 0.0
	for _, p := range report.Overview.Portfolios {
		totalDelinquent += p.DelinquentAmount
	}

	metrics := []Metric{
		{
			Name:   "delinquency_amount",
			Value:  totalDelinquent,
			Unit:   "eur",
			Status: bandHigh(totalDelinquent, t.DelinquencyAmount/2, t.DelinquencyAmount),
		},
		{
			Name:   "delinquency_rate",
			Value:  report.Overview.Summary.DelinquencyRate,
			Unit:   "percent",
			Status: bandHigh(report.Overview.Summary.DelinquencyRate, 2, 5),
		},
		{
			Name:   "error_contracts",
			Value:  float64(report.Errors.Summary.TotalErrorContracts),
			Unit:   "count",
			Status: statusWhen(report.Errors.Summary.TotalErrorContracts > 0, "alert"),
		},
		{
			Name:   "warning_contracts",
			Value:  float64(report.Warnings.Summary.TotalWarningContracts),
			Unit:   "count",
			Status: warningStatus(report),
		},
		{
			Name:   "writeoff_net_loss",
			Value:  report.Writeoffs.Summary.TotalNetLoss,
			Unit:   "eur",
			Status: writeoffStatus(report),
		},
		{
			Name:   "high_impact_changes",
			Value:  float64(report.AdditionalInfo.Summary.HighImpactChangesCount),
			Unit:   "count",
			Status: bandHigh(float64(report.AdditionalInfo.Summary.HighImpactChangesCount), 1, float64(t.HighImpactChanges)),
		},
		{
			Name:   "risk_score",
			Value:  analysis.RiskScore,
			Unit:   "score",
			Status: riskStatus(analysis.RiskLevel),
		},
	}
	return metrics
}

func (s *MetricsService) completionMetric(country string, reportDate time.Time) (*Metric, error) {
	qn, err := s.store.GetByKey(country, reportDate.Format(ReportDateLayout))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	progress := qn.Progress()
	status := "warn"
	if progress.CompletionPercentage >= 100 {
		status = "ok"
	}
	return &Metric{
		Name:   "questionnaire_completion",
		Value:  float64(progress.CompletionPercentage),
		Unit:   "percent",
		Status: status,
	}, nil
}

// bandHigh grades a higher-is-worse value against warn and alert limits.
func bandHigh(value, warnAt, alertAt float64) string {
	switch {
	case alertAt > 0 && value > alertAt:
		return "alert"
	case warnAt > 0 && value >= warnAt:
		return "warn"
	default:
		return "ok"
	}
}

func statusWhen(cond bool, status string) string {
	if cond {
		return status
	}
	return "ok"
}

func warningStatus(report *models.DQReport) string {
	if report.Warnings.Summary.RuleConfirmationIssues > 0 {
		return "alert"
	}
	return statusWhen(report.Warnings.Summary.TotalWarningContracts > 0, "warn")
}

func writeoffStatus(report *models.DQReport) string {
	if report.Writeoffs.Flags.SignificantLoss {
		return "alert"
	}
	if report.Writeoffs.Flags.HasNewWriteoffs || report.Writeoffs.Summary.TotalNetLoss > 0 {
		return "warn"
	}
	return "ok"
}

func riskStatus(level string) string {
	switch level {
	case "high":
		return "alert"
	case "medium":
		return "warn"
	default:
		return "ok"
	}
}

// applyTrends annotates current metrics with up/down/flat arrows by comparing
// the same metric in the previous period.
func applyTrends(current, previous []Metric) {
	prev := make(map[string]float64, len(previous))
	for _, m := range previous {
		prev[m.Name] = m.Value
	}
	for i := range current {
		p, ok := prev[current[i].Name]
		if !ok {
			continue
		}
		switch {
		case math.Abs(current[i].Value-p) < 0.001:
			current[i].Trend = "flat"
		case current[i].Value > p:
			current[i].Trend = "up"
		default:
			current[i].Trend = "down"
		}
	}
}

// metricFocusArea maps metric names to the report category they point at.
var metricFocusArea = map[string]string{
	"delinquency_amount":  "overview",
	"delinquency_rate":    "overview",
	"error_contracts":     "errors",
	"warning_contracts":   "warnings",
	"writeoff_net_loss":   "writeoffs",
	"high_impact_changes": "additional information",
}

func focusAreasFromMetrics(metrics []Metric) []string {
	var areas []string
	seen := make(map[string]bool)
	for _, m := range metrics {
		if m.Status != "alert" {
			continue
		}
		area, ok := metricFocusArea[m.Name]
		if !ok || seen[area] {
			continue
		}
		seen[area] = true
		areas = append(areas, area)
	}
	return areas
}

// previousPeriod returns a date in the prior month. Report files are resolved
// by month and year, so the exact day does not matter.
func previousPeriod(reportDate time.Time) time.Time {
	firstOfMonth := time.Date(reportDate.Year(), reportDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 0, -1)
}
