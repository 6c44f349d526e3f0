package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aravindsuri/dqagent/internal/models"
)

// AnalyzerThresholds are the tunable limits applied when analyzing a report.
// Values come from system config with config-file fallbacks.
type AnalyzerThresholds struct {
	DelinquencyAmount  float64
	SignificantChanges int
	HighImpactChanges  int
}

// ReportService loads monthly DQ report files and derives their risk
// analysis.
type ReportService struct {
	dir string
}

func NewReportService(dir string) *ReportService {
	return &ReportService{dir: dir}
}

// ReportFileName builds the conventional report file name, e.g.
// "nl_may_2025.json" for the Netherlands May 2025 report.
func ReportFileName(country string, reportDate time.Time) string {
	return fmt.Sprintf("%s_%s_%d.json",
		strings.ToLower(country),
		strings.ToLower(reportDate.Month().String()),
		reportDate.Year())
}

// Load reads and parses the report for a country and reporting date.
func (s *ReportService) Load(country string, reportDate time.Time) (*models.DQReport, error) {
	name := ReportFileName(country, reportDate)
	path := filepath.Join(s.dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", name, err)
	}

	var report models.DQReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", name, err)
	}

	return &report, nil
}

// AnalyzeReport computes the risk analysis for a report: a 0-10 risk score
// averaged over the triggered risk components, plus derived insights,
// patterns and recommendations.
func AnalyzeReport(report *models.DQReport, t AnalyzerThresholds) *models.RiskAnalysis {
	var components []float64

	totalContracts := 0
	errorContracts := 0
	totalDelinquent := 0.0
	for _, p := range report.Overview.Portfolios {
		if strings.Contains(p.Criteria, "Error") {
			errorContracts += p.NoOfContracts
		}
		totalContracts += p.NoOfContracts
		totalDelinquent += p.DelinquentAmount
	}

	if totalContracts > 0 {
		errorRate := float64(errorContracts) / float64(totalContracts) * 100
		components = append(components, min10(errorRate*2))
	}

	if totalDelinquent > t.DelinquencyAmount {
		components = append(components, min10(totalDelinquent/1_000_000*5))
	}

	totalChanges := report.AdditionalInfo.Summary.TotalChanges
	if totalChanges > 200 {
		components = append(components, min10(float64(totalChanges)/100))
	}

	score := 0.0
	if len(components) > 0 {
		for _, c := range components {
			score += c
		}
		score /= float64(len(components))
	}

	analysis := &models.RiskAnalysis{
		RiskScore:         score,
		RiskLevel:         riskLevel(score),
		KeyInsights:       keyInsights(report, t),
		Patterns:          identifyPatterns(report),
		Recommendations:   recommendations(report, score),
		PriorityAreas:     priorityAreas(report, t),
		RequiresAttention: score > 7.0,
	}

	if totalDelinquent > t.DelinquencyAmount {
		analysis.ThresholdsBreached = append(analysis.ThresholdsBreached, models.ThresholdBreach{
			Metric: "total_delinquent_amount", Value: totalDelinquent, Threshold: t.DelinquencyAmount,
		})
	}
	if totalChanges > 200 {
		analysis.ThresholdsBreached = append(analysis.ThresholdsBreached, models.ThresholdBreach{
			Metric: "total_changes", Value: float64(totalChanges), Threshold: 200,
		})
	}

	return analysis
}

func min10(v float64) float64 {
	if v > 10 {
		return 10
	}
	return v
}

func riskLevel(score float64) string {
	switch {
	case score >= 8:
		return "high"
	case score >= 5:
		return "medium"
	default:
		return "low"
	}
}

func keyInsights(report *models.DQReport, t AnalyzerThresholds) []string {
	var insights []string

	for _, p := range report.Overview.Portfolios {
		if p.DelinquentAmount > t.DelinquencyAmount {
			insights = append(insights, fmt.Sprintf("High delinquency detected: €%.2f in %s portfolio", p.DelinquentAmount, p.Criteria))
		}
	}

	if n := report.Errors.Summary.TotalErrorContracts; n > 0 {
		insights = append(insights, fmt.Sprintf("Data quality issues: %d contracts with errors", n))
	}

	if report.AdditionalInfo.Categories != nil && len(report.AdditionalInfo.Categories.HighImpact) > 0 {
		topName, topCount := "", 0
		for name, count := range report.AdditionalInfo.Categories.HighImpact {
			if count > topCount || (count == topCount && name < topName) {
				topName, topCount = name, count
			}
		}
		insights = append(insights, fmt.Sprintf("High change volume: %d changes in %s", topCount, topName))
	}

	return insights
}

func identifyPatterns(report *models.DQReport) []string {
	var patterns []string
	changes := report.AdditionalInfo.Changes

	if changes["Changes in Contract End Date"] > 100 {
		patterns = append(patterns, "High volume of contract end date changes suggests termination pattern")
	}
	if changes["Changes in Rating"] > 100 {
		patterns = append(patterns, "Significant rating updates indicate credit risk reassessment")
	}

	return patterns
}

func recommendations(report *models.DQReport, riskScore float64) []string {
	var recs []string

	if riskScore > 7 {
		recs = append(recs,
			"Immediate escalation to senior management required",
			"Implement enhanced monitoring for delinquent accounts")
	}
	if report.AdditionalInfo.Summary.TotalChanges > 200 {
		recs = append(recs,
			"Review change management processes and controls",
			"Validate data integrity after high change volume")
	}
	if report.Errors.Summary.NegativeAmountIssues > 0 {
		recs = append(recs, "Investigate and correct negative amount calculations")
	}

	return recs
}

func priorityAreas(report *models.DQReport, t AnalyzerThresholds) []string {
	var areas []string

	totalDelinquent := 0.0
	for _, p := range report.Overview.Portfolios {
		totalDelinquent += p.DelinquentAmount
	}
	if totalDelinquent > t.DelinquencyAmount {
		areas = append(areas, "Overview")
	}
	if report.Errors.Summary.TotalErrorContracts > 0 {
		areas = append(areas, "Errors")
	}
	if report.AdditionalInfo.Summary.TotalChanges > 200 {
		areas = append(areas, "Additional Information")
	}
	if report.Writeoffs.Flags.SignificantLoss {
		areas = append(areas, "Writeoffs")
	}
	if report.Warnings.Summary.RuleConfirmationIssues > 0 {
		areas = append(areas, "Warnings")
	}

	return areas
}

// ReportFindings renders the report's anomalies as a text block for the
// generation prompt. Only sections with material content are included.
func ReportFindings(report *models.DQReport, t AnalyzerThresholds) string {
	var b strings.Builder

	for _, p := range report.Overview.Portfolios {
		if p.Criteria == "Relevant Portfolio" && p.DelinquentAmount > t.DelinquencyAmount {
			fmt.Fprintf(&b, "- Delinquent amount €%.2f in the relevant portfolio (%d contracts, NBV €%.2f) exceeds the €%.2f threshold.\n",
				p.DelinquentAmount, p.NoOfContracts, p.NetBookValue, t.DelinquencyAmount)
		}
		if strings.Contains(p.Criteria, "Error") && p.NoOfContracts > 0 {
			fmt.Fprintf(&b, "- %d contracts in the error portfolio with negative amounts (NBV €%.2f).\n",
				p.NoOfContracts, p.NetBookValue)
		}
	}

	if changes := significantChanges(report, t.SignificantChanges); len(changes) > 0 {
		fmt.Fprintf(&b, "- Significant field changes:")
		for i, c := range changes {
			if i > 0 {
				b.WriteString(";")
			}
			fmt.Fprintf(&b, " %s: %d", c.Name, c.Count)
		}
		b.WriteString("\n")
	}

	if report.Writeoffs.Flags.HasNewWriteoffs || report.Writeoffs.Summary.TotalNetLoss > 0 {
		fmt.Fprintf(&b, "- Writeoffs: net loss €%.2f, %d new writeoffs.\n",
			report.Writeoffs.Summary.TotalNetLoss, report.Writeoffs.Summary.NewWriteoffCount)
	}

	if n := report.Warnings.Summary.RuleConfirmationIssues; n > 0 {
		fmt.Fprintf(&b, "- %d contracts carry rule confirmation warnings.\n", n)
	}

	if b.Len() == 0 {
		return "No threshold breaches detected this period."
	}
	return b.String()
}

// changeCount is one named change-type tally from the additional-info sheet.
type changeCount struct {
	Name  string
	Count int
}

// significantChanges returns change types above the significance threshold,
// largest first with name as tie-break so output is deterministic.
func significantChanges(report *models.DQReport, minCount int) []changeCount {
	var out []changeCount
	for name, count := range report.AdditionalInfo.Changes {
		if count > minCount {
			out = append(out, changeCount{Name: name, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
