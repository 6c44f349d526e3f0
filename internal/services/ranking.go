package services

import (
	"sort"

	"github.com/aravindsuri/dqagent/internal/models"
)

// RankQuestions orders questions by priority weight descending, breaking ties
// by order_sequence ascending. The sort is stable, so questions that collide
// on both keys keep their input order. The input slice is not modified.
func RankQuestions(questions []models.Question) []models.Question {
	ranked := make([]models.Question, len(questions))
	copy(ranked, questions)

	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := ranked[i].Priority.Weight(), ranked[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return ranked[i].OrderSequence < ranked[j].OrderSequence
	})

	return ranked
}

// NextIncomplete returns the first ranked question that has no completed or
// approved response yet, or nil when the questionnaire is done.
func NextIncomplete(q *models.Questionnaire) *models.Question {
	done := make(map[string]bool, len(q.Responses))
	for i := range q.Responses {
		if q.Responses[i].Status.Done() {
			done[q.Responses[i].QuestionID] = true
		}
	}

	for _, question := range RankQuestions(q.Questions) {
		if !done[question.ID] {
			// Return the caller's copy, not the ranked scratch slice.
			for i := range q.Questions {
				if q.Questions[i].ID == question.ID {
					return &q.Questions[i]
				}
			}
		}
	}
	return nil
}
