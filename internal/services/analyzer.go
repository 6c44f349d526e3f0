package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aravindsuri/dqagent/internal/models"
)

// Analyzer derives question candidates directly from report anomalies. It
// needs no model call, which makes it both the fallback source when every AI
// provider is unreachable and the deterministic baseline for what a usable
// candidate looks like.
type Analyzer struct {
	thresholds AnalyzerThresholds
}

func NewAnalyzer(t AnalyzerThresholds) *Analyzer {
	return &Analyzer{thresholds: t}
}

func (a *Analyzer) Name() string { return "analyzer" }

// Generate implements CandidateSource. Thresholds resolved by the gateway
// for the run take precedence over the constructor defaults.
func (a *Analyzer) Generate(_ context.Context, req *GenerationRequest, report *models.DQReport) ([]QuestionCandidate, error) {
	eff := a
	if req.Thresholds != (AnalyzerThresholds{}) {
		eff = &Analyzer{thresholds: req.Thresholds}
	}
	return eff.Candidates(report, req.FocusAreas), nil
}

// Candidates inspects each report section and emits one candidate per
// detected anomaly. focusAreas narrows the output to matching categories;
// empty keeps everything. IDs are left blank so the gateway assigns them.
func (a *Analyzer) Candidates(report *models.DQReport, focusAreas []string) []QuestionCandidate {
	var out []QuestionCandidate
	out = append(out, a.portfolioCandidates(report)...)
	out = append(out, a.changeCandidates(report)...)
	out = append(out, a.writeoffCandidates(report)...)
	out = append(out, a.warningCandidates(report)...)
	return filterByFocus(out, focusAreas)
}

// portfolioCandidates raises the two overview-level questions: a delinquency
// spike in the relevant portfolio and contracts sitting in an error portfolio.
func (a *Analyzer) portfolioCandidates(report *models.DQReport) []QuestionCandidate {
	var relevant, errorPortfolio *models.PortfolioData
	for i := range report.Overview.Portfolios {
		p := &report.Overview.Portfolios[i]
		switch {
		case p.Criteria == "Relevant Portfolio":
			relevant = p
		case strings.Contains(p.Criteria, "Error"):
			errorPortfolio = p
		}
	}

	var out []QuestionCandidate

	if relevant != nil && relevant.DelinquentAmount > a.thresholds.DelinquencyAmount {
		conf := 0.95
		out = append(out, QuestionCandidate{
			Category: models.CategoryOverview,
			Priority: string(models.PriorityCritical),
			QuestionText: fmt.Sprintf(
				"It has been observed that there is a considerable increase in delinquent amount (€%s) and change in the NBV of the relevant portfolio compared to the previous month. Can you please provide additional information on this?",
				formatAmount(relevant.DelinquentAmount)),
			Context:              "Significant delinquent amount increase detected in portfolio analysis",
			ExpectedResponseType: models.ResponseTypeText,
			ValidationRules:      []string{MinLengthRule(75), RuleRequiresExplanation, RuleRequiresTimeline},
			RelatedData: map[string]any{
				"delinquent_amount":  relevant.DelinquentAmount,
				"portfolio_data":     relevant,
				"threshold_exceeded": true,
			},
			OrderSequence:   1,
			ConfidenceScore: &conf,
		})
	}

	if errorPortfolio != nil && errorPortfolio.NoOfContracts > 0 {
		conf := 0.90
		out = append(out, QuestionCandidate{
			Category: models.CategoryOverview,
			Priority: string(models.PriorityHigh),
			QuestionText: fmt.Sprintf(
				"There are %d contracts in the Error portfolio with negative amounts detected. Please explain the nature of these errors and your remediation plan.",
				errorPortfolio.NoOfContracts),
			Context:              "Error contracts with negative amounts detected in portfolio overview",
			ExpectedResponseType: models.ResponseTypeText,
			ValidationRules:      []string{MinLengthRule(50), RuleRequiresActionPlan},
			RelatedData: map[string]any{
				"error_contracts": errorPortfolio.NoOfContracts,
				"error_amount":    errorPortfolio.NetBookValue,
				"portfolio_data":  errorPortfolio,
			},
			OrderSequence:   2,
			ConfidenceScore: &conf,
		})
	}

	return out
}

// changeCandidates raises one structured question when the Additional
// Information sheet shows a meaningful number of field changes. Priority
// climbs to high when any single change type crosses the high-impact bar.
func (a *Analyzer) changeCandidates(report *models.DQReport) []QuestionCandidate {
	significant := significantChanges(report, a.thresholds.SignificantChanges)
	if len(significant) == 0 {
		return nil
	}

	changes := make(map[string]int, len(significant))
	total := 0
	var highImpact []string
	for _, c := range significant {
		changes[c.Name] = c.Count
		total += c.Count
		if c.Count > a.thresholds.HighImpactChanges {
			highImpact = append(highImpact, fmt.Sprintf("%s: %d", c.Name, c.Count))
		}
	}

	top := significant
	if len(top) > 5 {
		top = top[:5]
	}
	summary := make([]string, 0, len(top))
	for _, c := range top {
		summary = append(summary, fmt.Sprintf("%s: %d", c.Name, c.Count))
	}

	categories := make([]string, 0, len(significant))
	for _, c := range significant {
		categories = append(categories, c.Name)
	}

	priority := models.PriorityMedium
	if len(highImpact) > 0 {
		priority = models.PriorityHigh
	}

	conf := 0.85
	return []QuestionCandidate{{
		Category: models.CategoryAdditionalInfo,
		Priority: string(priority),
		QuestionText: fmt.Sprintf(
			"You'll find the list of contracts in the \"Additional Information\" sheet of the DQ report. Can you please provide clarifications on the changes highlighted: %s",
			strings.Join(summary, "; ")),
		Context:              "Significant data changes detected in multiple categories",
		ExpectedResponseType: models.ResponseTypeStructured,
		ValidationRules:      []string{"requires_explanations_per_category", MinLengthRule(100)},
		RelatedData: map[string]any{
			"significant_changes": changes,
			"total_changes":       total,
			"high_impact_changes": highImpact,
			"change_categories":   categories,
		},
		FollowUpQuestions: []string{
			"What business processes or system changes caused these modifications?",
			"Are these changes permanent or temporary adjustments?",
			"What controls are in place to validate these changes?",
		},
		OrderSequence:   3,
		ConfidenceScore: &conf,
	}}
}

// writeoffCandidates asks for confirmation of the writeoff analysis when new
// writeoffs were flagged or any portfolio reports a net loss. Only the first
// converted/relevant portfolio row carries the question.
func (a *Analyzer) writeoffCandidates(report *models.DQReport) []QuestionCandidate {
	section := report.Writeoffs
	hasLoss := section.Flags.HasNewWriteoffs
	for _, w := range section.Writeoffs {
		if w.NetLossAmount > 0 {
			hasLoss = true
			break
		}
	}
	if !hasLoss {
		return nil
	}

	for i := range section.Writeoffs {
		w := &section.Writeoffs[i]
		if w.Criteria != "Converted Portfolio" && w.Criteria != "Relevant Portfolio" {
			continue
		}
		conf := 0.80
		return []QuestionCandidate{{
			Category: models.CategoryWriteoffs,
			Priority: string(models.PriorityMedium),
			QuestionText: fmt.Sprintf(
				"Can you please check and provide additional information on the net loss amount (€%s) and confirm the writeoff analysis? You'll find it in the 'Writeoff' sheet of the DQ report.",
				formatAmount(w.NetLossAmount)),
			Context:              "Writeoff amounts require verification and explanation",
			ExpectedResponseType: models.ResponseTypeText,
			ValidationRules:      []string{MinLengthRule(50), RuleRequiresConfirm},
			RelatedData: map[string]any{
				"net_loss_amount":       w.NetLossAmount,
				"writeoff_criteria":     w.Criteria,
				"new_writeoffs_present": section.Flags.HasNewWriteoffs,
				"writeoff_data":         w,
			},
			OrderSequence:   4,
			ConfidenceScore: &conf,
		}}
	}
	return nil
}

// warningCandidates aggregates rule-confirmation warnings (description
// mentions "confirm") into a single structured question.
func (a *Analyzer) warningCandidates(report *models.DQReport) []QuestionCandidate {
	var ruleWarnings []models.WarningData
	for _, w := range report.Warnings.Warnings {
		if strings.Contains(strings.ToLower(w.Description), "confirm") {
			ruleWarnings = append(ruleWarnings, w)
		}
	}
	if len(ruleWarnings) == 0 {
		return nil
	}

	totalContracts := 0
	types := make([]string, 0, len(ruleWarnings))
	for _, w := range ruleWarnings {
		totalContracts += w.Contracts
		types = append(types, w.Description)
	}

	conf := 0.75
	return []QuestionCandidate{{
		Category: models.CategoryWarnings,
		Priority: string(models.PriorityMedium),
		QuestionText: fmt.Sprintf(
			"Can you please provide additional information for the warnings: %d contracts with rule confirmation issues. What specific business rules are failing and what is your remediation plan?",
			totalContracts),
		Context:              "Rule confirmation warnings detected requiring business explanation",
		ExpectedResponseType: models.ResponseTypeStructured,
		ValidationRules:      []string{"requires_detailed_breakdown", "requires_remediation_plan"},
		RelatedData: map[string]any{
			"warning_contracts": totalContracts,
			"rule_warnings":     ruleWarnings,
			"warning_types":     types,
		},
		OrderSequence:   5,
		ConfidenceScore: &conf,
	}}
}

func filterByFocus(cands []QuestionCandidate, focusAreas []string) []QuestionCandidate {
	if len(focusAreas) == 0 {
		return cands
	}
	want := make(map[string]bool, len(focusAreas))
	for _, area := range focusAreas {
		norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(area), "_", " "))
		if norm != "" {
			want[norm] = true
		}
	}
	if len(want) == 0 {
		return cands
	}
	out := cands[:0:0]
	for _, c := range cands {
		if want[strings.ToLower(c.Category)] {
			out = append(out, c)
		}
	}
	return out
}

// formatAmount renders a monetary value with thousands separators,
// e.g. 1234567.5 becomes "1,234,567.50".
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	var b strings.Builder
	for i := 0; i < len(intPart); i++ {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(intPart[i])
	}
	if neg {
		return "-" + b.String() + frac
	}
	return b.String() + frac
}
