package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validation rule names understood by the engine. Rules not listed here are
// skipped so that new rule kinds can ship before the engine learns them.
const (
	RuleMinLengthPrefix     = "min_length:"
	RuleRequiresExplanation = "requires_explanation"
	RuleRequiresTimeline    = "requires_timeline"
	RuleRequiresActionPlan  = "requires_action_plan"
	RuleRequiresConfirm     = "requires_confirmation"
)

// MinLengthRule builds a parameterized minimum-length rule, e.g. "min_length:75".
func MinLengthRule(n int) string {
	return RuleMinLengthPrefix + strconv.Itoa(n)
}

// Causal connectives accepted by requires_explanation. Substring policy, not
// NLP: an answer that names a cause in other words should rephrase.
var causalMarkers = []string{"because", "due to", "caused by", "as a result", "driven by"}

// Action-oriented tokens accepted by requires_action_plan.
var actionMarkers = []string{"plan", "action", "measure", "step", "implement"}

// Confirmation tokens accepted by requires_confirmation.
var confirmMarkers = []string{"confirm", "acknowledge", "verified", "correct"}

var (
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	quarterPattern = regexp.MustCompile(`(?i)\bq[1-4]\b`)
)

// Temporal tokens accepted by requires_timeline besides years and quarters.
var timelineTokens = []string{"week", "month", "day", "quarter"}

// RuleCheck is the outcome of one rule against one response text.
type RuleCheck struct {
	Rule    string `json:"rule"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// ValidationResult aggregates all rule checks for a response. Errors is empty
// exactly when IsValid is true.
type ValidationResult struct {
	IsValid bool        `json:"is_valid"`
	Errors  []string    `json:"errors"`
	Checks  []RuleCheck `json:"checks"`
}

// Score returns the fraction of evaluated rules that passed, in [0,1]. An
// empty rule set scores 1. Used as the validation score when no AI validator
// is configured.
func (r *ValidationResult) Score() float64 {
	if len(r.Checks) == 0 {
		return 1.0
	}
	passed := 0
	for _, c := range r.Checks {
		if c.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(r.Checks))
}

// Suggestions derives one improvement hint per failed rule.
func (r *ValidationResult) Suggestions() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Passed {
			continue
		}
		switch {
		case strings.HasPrefix(c.Rule, RuleMinLengthPrefix):
			out = append(out, "Expand the response with the underlying figures and background")
		case c.Rule == RuleRequiresExplanation:
			out = append(out, "Name the root cause explicitly, e.g. 'because of ...'")
		case c.Rule == RuleRequiresTimeline:
			out = append(out, "Add a concrete timeline, e.g. a quarter, month or target year")
		case c.Rule == RuleRequiresActionPlan:
			out = append(out, "Describe the planned remediation steps")
		case c.Rule == RuleRequiresConfirm:
			out = append(out, "State explicitly whether the reported figures are confirmed")
		}
	}
	return out
}

// ValidationEngine checks response texts against declarative per-question
// rules. It is pure and synchronous: no I/O, no state.
type ValidationEngine struct{}

func NewValidationEngine() *ValidationEngine {
	return &ValidationEngine{}
}

// Validate evaluates every rule independently; all failing rules contribute
// their own error. Unknown rule kinds are skipped.
func (e *ValidationEngine) Validate(text string, rules []string) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	for _, rule := range rules {
		check, known := evaluateRule(rule, trimmed, lower)
		if !known {
			continue
		}
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.IsValid = false
			result.Errors = append(result.Errors, check.Message)
		}
	}

	return result
}

func evaluateRule(rule, trimmed, lower string) (RuleCheck, bool) {
	check := RuleCheck{Rule: rule, Passed: true}

	switch {
	case strings.HasPrefix(rule, RuleMinLengthPrefix):
		min, err := strconv.Atoi(strings.TrimPrefix(rule, RuleMinLengthPrefix))
		if err != nil || min < 0 {
			return check, false
		}
		if utf8.RuneCountInString(trimmed) < min {
			check.Passed = false
			check.Message = fmt.Sprintf("Response must be at least %d characters", min)
		}

	case rule == RuleRequiresExplanation:
		if !containsAny(lower, causalMarkers) {
			check.Passed = false
			check.Message = "Response must explain the cause (e.g. 'because ...')"
		}

	case rule == RuleRequiresTimeline:
		if !hasTimeline(lower) {
			check.Passed = false
			check.Message = "Response must include a timeline (e.g. a target month, quarter or year)"
		}

	case rule == RuleRequiresActionPlan:
		if !containsAny(lower, actionMarkers) {
			check.Passed = false
			check.Message = "Response must describe an action plan or remediation steps"
		}

	case rule == RuleRequiresConfirm:
		if !containsAny(lower, confirmMarkers) {
			check.Passed = false
			check.Message = "Response must explicitly confirm the reported figures"
		}

	default:
		return check, false
	}

	return check, true
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func hasTimeline(lower string) bool {
	if yearPattern.MatchString(lower) || quarterPattern.MatchString(lower) {
		return true
	}
	return containsAny(lower, timelineTokens)
}
