package services

import (
	"reflect"
	"testing"

	"github.com/aravindsuri/dqagent/internal/models"
)

func question(id string, priority models.Priority, seq int) models.Question {
	return models.Question{ID: id, Priority: priority, OrderSequence: seq, QuestionText: id}
}

func ids(questions []models.Question) []string {
	out := make([]string, len(questions))
	for i, q := range questions {
		out[i] = q.ID
	}
	return out
}

func TestRankQuestions_PriorityThenSequence(t *testing.T) {
	input := []models.Question{
		question("med-2", models.PriorityMedium, 2),
		question("crit-5", models.PriorityCritical, 5),
		question("high-1", models.PriorityHigh, 1),
		question("low-3", models.PriorityLow, 3),
		question("crit-2", models.PriorityCritical, 2),
		question("high-4", models.PriorityHigh, 4),
	}

	got := ids(RankQuestions(input))
	want := []string{"crit-2", "crit-5", "high-1", "high-4", "med-2", "low-3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RankQuestions() = %v, want %v", got, want)
	}
}

func TestRankQuestions_Idempotent(t *testing.T) {
	input := []models.Question{
		question("a", models.PriorityLow, 9),
		question("b", models.PriorityCritical, 1),
		question("c", models.PriorityHigh, 4),
		question("d", models.PriorityMedium, 2),
	}

	once := RankQuestions(input)
	twice := RankQuestions(once)
	if !reflect.DeepEqual(ids(once), ids(twice)) {
		t.Errorf("rank(rank(q)) = %v, rank(q) = %v", ids(twice), ids(once))
	}
}

func TestRankQuestions_StableOnDuplicateKeys(t *testing.T) {
	// Same priority and same order_sequence: input order must be preserved.
	input := []models.Question{
		question("first", models.PriorityHigh, 1),
		question("second", models.PriorityHigh, 1),
		question("third", models.PriorityHigh, 1),
	}

	got := ids(RankQuestions(input))
	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("duplicate-key order = %v, want %v", got, want)
	}
}

func TestRankQuestions_DoesNotMutateInput(t *testing.T) {
	input := []models.Question{
		question("z", models.PriorityLow, 1),
		question("a", models.PriorityCritical, 2),
	}

	RankQuestions(input)
	if input[0].ID != "z" || input[1].ID != "a" {
		t.Error("input slice was reordered")
	}
}

func TestNextIncomplete(t *testing.T) {
	q := &models.Questionnaire{
		Questions: []models.Question{
			question("med", models.PriorityMedium, 3),
			question("crit", models.PriorityCritical, 1),
			question("high", models.PriorityHigh, 2),
		},
	}

	if next := NextIncomplete(q); next == nil || next.ID != "crit" {
		t.Fatalf("expected highest-ranked open question 'crit', got %v", next)
	}

	q.Responses = []models.QuestionResponse{{QuestionID: "crit", Status: models.StatusCompleted}}
	if next := NextIncomplete(q); next == nil || next.ID != "high" {
		t.Fatalf("expected 'high' after crit completed, got %v", next)
	}

	// A partial response keeps the question open.
	q.Responses = append(q.Responses, models.QuestionResponse{QuestionID: "high", Status: models.StatusPartial})
	if next := NextIncomplete(q); next == nil || next.ID != "high" {
		t.Fatalf("partial response must keep the question open, got %v", next)
	}

	q.Responses = []models.QuestionResponse{
		{QuestionID: "crit", Status: models.StatusCompleted},
		{QuestionID: "high", Status: models.StatusApproved},
		{QuestionID: "med", Status: models.StatusCompleted},
	}
	if next := NextIncomplete(q); next != nil {
		t.Errorf("expected nil when all questions are done, got %v", next.ID)
	}
}
