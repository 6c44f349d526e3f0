package services

import (
	"strings"
	"testing"
)

func TestValidate_MinLengthBoundary(t *testing.T) {
	engine := NewValidationEngine()

	nine := strings.Repeat("a", 9)
	ten := strings.Repeat("a", 10)

	if r := engine.Validate(nine, []string{"min_length:10"}); r.IsValid {
		t.Error("9 characters should fail min_length:10")
	}
	if r := engine.Validate(ten, []string{"min_length:10"}); !r.IsValid {
		t.Errorf("10 characters should pass min_length:10, errors: %v", r.Errors)
	}

	// Trailing whitespace must not count toward the length.
	if r := engine.Validate(nine+"   ", []string{"min_length:10"}); r.IsValid {
		t.Error("9 characters plus whitespace should fail min_length:10")
	}
}

func TestValidate_MinLengthErrorNamesMinimum(t *testing.T) {
	engine := NewValidationEngine()

	r := engine.Validate("short", []string{"min_length:75"})
	if r.IsValid {
		t.Fatal("expected failure")
	}
	if len(r.Errors) != 1 || !strings.Contains(r.Errors[0], "75") {
		t.Errorf("error should name the required minimum, got %v", r.Errors)
	}
}

func TestValidate_RequiresExplanation(t *testing.T) {
	engine := NewValidationEngine()
	rules := []string{"requires_explanation"}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"because", "The amount rose because contracts terminated", true},
		{"because uppercase", "The amount rose BECAUSE contracts terminated", true},
		{"due to", "The spike is due to fleet downsizing", true},
		{"caused by", "Caused by a system migration", true},
		{"driven by", "Driven by seasonal effects", true},
		{"no marker", "The amount rose sharply last period", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Validate(tt.text, rules).IsValid; got != tt.want {
				t.Errorf("IsValid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_RequiresTimeline(t *testing.T) {
	engine := NewValidationEngine()
	rules := []string{"requires_timeline"}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"four digit year", "Resolution expected during 2025", true},
		{"quarter token", "We will remediate in Q1", true},
		{"lowercase quarter", "fixed in q3 at the latest", true},
		{"month token", "Cleanup is scheduled for next month", true},
		{"week token", "Correction planned within two weeks", true},
		{"no temporal reference", "We are working on it with the vendor", false},
		{"unrelated digits", "Contract 123 was affected", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := engine.Validate(tt.text, rules)
			if r.IsValid != tt.want {
				t.Errorf("IsValid = %v, want %v (errors %v)", r.IsValid, tt.want, r.Errors)
			}
			if !tt.want {
				if len(r.Errors) == 0 || !strings.Contains(strings.ToLower(r.Errors[0]), "timeline") {
					t.Errorf("expected a timeline-related error, got %v", r.Errors)
				}
			}
		})
	}
}

func TestValidate_RequiresActionPlan(t *testing.T) {
	engine := NewValidationEngine()
	rules := []string{"requires_action_plan"}

	if r := engine.Validate("We will implement stricter checks", rules); !r.IsValid {
		t.Errorf("'implement' should satisfy the rule, errors: %v", r.Errors)
	}
	if r := engine.Validate("A corrective measure is being rolled out", rules); !r.IsValid {
		t.Errorf("'measure' should satisfy the rule, errors: %v", r.Errors)
	}
	if r := engine.Validate("The figures are under review", rules); r.IsValid {
		t.Error("text without action tokens should fail")
	}
}

func TestValidate_RequiresConfirmation(t *testing.T) {
	engine := NewValidationEngine()
	rules := []string{"requires_confirmation"}

	if r := engine.Validate("We confirm the write-off figures are final", rules); !r.IsValid {
		t.Errorf("'confirm' should satisfy the rule, errors: %v", r.Errors)
	}
	if r := engine.Validate("The numbers look plausible to us", rules); r.IsValid {
		t.Error("text without confirmation tokens should fail")
	}
}

func TestValidate_NoShortCircuit(t *testing.T) {
	engine := NewValidationEngine()

	r := engine.Validate("too short", []string{"min_length:50", "requires_explanation", "requires_timeline"})
	if r.IsValid {
		t.Fatal("expected failure")
	}
	if len(r.Errors) != 3 {
		t.Errorf("every failing rule must contribute an error, got %d: %v", len(r.Errors), r.Errors)
	}
}

func TestValidate_UnknownRulesIgnored(t *testing.T) {
	engine := NewValidationEngine()

	r := engine.Validate("anything", []string{"requires_detailed_breakdown", "requires_remediation_plan", "min_length:3"})
	if !r.IsValid {
		t.Errorf("unknown rules must not fail validation, errors: %v", r.Errors)
	}
	if len(r.Checks) != 1 {
		t.Errorf("unknown rules must not be counted, got %d checks", len(r.Checks))
	}
}

func TestValidate_ErrorsEmptyIffValid(t *testing.T) {
	engine := NewValidationEngine()

	texts := []string{
		"",
		"short",
		"The increase is due to terminated leases because of fleet downsizing in Q2 2025",
		"No markers at all in this sentence",
	}
	ruleSets := [][]string{
		nil,
		{"min_length:10"},
		{"requires_explanation", "requires_timeline"},
		{"min_length:200", "requires_action_plan", "unknown_rule"},
	}

	for _, text := range texts {
		for _, rules := range ruleSets {
			r := engine.Validate(text, rules)
			if r.IsValid != (len(r.Errors) == 0) {
				t.Errorf("inconsistent result for %q / %v: valid=%v errors=%v", text, rules, r.IsValid, r.Errors)
			}
		}
	}
}

func TestValidate_FullRuleSetSample(t *testing.T) {
	engine := NewValidationEngine()

	text := "The increase is due to terminated leases because of fleet downsizing in Q2 2025, with an action plan to review contracts monthly"
	rules := []string{"min_length:10", "requires_explanation", "requires_timeline", "requires_action_plan"}

	r := engine.Validate(text, rules)
	if !r.IsValid {
		t.Errorf("sample response should pass all rules, errors: %v", r.Errors)
	}
	if s := r.Score(); s != 1.0 {
		t.Errorf("score = %v, want 1.0", s)
	}
}

func TestValidationResult_Score(t *testing.T) {
	engine := NewValidationEngine()

	r := engine.Validate("too short", []string{"min_length:50", "requires_timeline"})
	if s := r.Score(); s != 0 {
		t.Errorf("score = %v, want 0", s)
	}

	r = engine.Validate("remediation planned for Q1 2026", []string{"min_length:100", "requires_timeline"})
	if s := r.Score(); s != 0.5 {
		t.Errorf("score = %v, want 0.5", s)
	}

	r = engine.Validate("anything", nil)
	if s := r.Score(); s != 1.0 {
		t.Errorf("empty rule set score = %v, want 1.0", s)
	}
}

func TestValidationResult_Suggestions(t *testing.T) {
	engine := NewValidationEngine()

	r := engine.Validate("no markers here at all", []string{"requires_explanation", "requires_timeline"})
	suggestions := r.Suggestions()
	if len(suggestions) != 2 {
		t.Errorf("expected one suggestion per failed rule, got %v", suggestions)
	}
}
