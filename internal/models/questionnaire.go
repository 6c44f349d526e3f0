package models

import (
	"math"
	"time"
)

// QuestionnaireStatus is the aggregate state of a questionnaire.
type QuestionnaireStatus string

const (
	QuestionnaireActive    QuestionnaireStatus = "active"
	QuestionnaireCompleted QuestionnaireStatus = "completed"
	QuestionnaireArchived  QuestionnaireStatus = "archived"
)

// Progress is the derived completion tuple of a questionnaire.
type Progress struct {
	TotalQuestions       int `json:"total_questions"`
	CompletedResponses   int `json:"completed_responses"`
	CompletionPercentage int `json:"completion_percentage"`
}

// Summary aggregates a questionnaire by priority tier and category.
type Summary struct {
	TotalQuestions             int      `json:"total_questions"`
	HighPriority               int      `json:"high_priority"`
	CriticalPriority           int      `json:"critical_priority"`
	Categories                 []string `json:"categories"`
	RequiresImmediateAttention bool     `json:"requires_immediate_attention"`
	DataPointsAnalyzed         int      `json:"data_points_analyzed"`
}

// Questionnaire holds the generated questions and their responses for one
// (country, report_date) pair. Exactly one exists per pair; regenerating
// replaces the previous one.
type Questionnaire struct {
	ID          string              `gorm:"primaryKey;size:64" json:"id"`
	Country     string              `gorm:"size:8;not null;uniqueIndex:idx_questionnaire_key,priority:1" json:"country"`
	ReportDate  string              `gorm:"size:16;not null;uniqueIndex:idx_questionnaire_key,priority:2" json:"report_date"`
	Entity      string              `gorm:"size:200" json:"entity"`
	ReportFile  string              `gorm:"size:255" json:"report_file"`
	GeneratedAt time.Time           `json:"generated_at"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
	Status      QuestionnaireStatus `gorm:"size:20;default:active" json:"status"`
	Questions   []Question          `gorm:"foreignKey:QuestionnaireID;references:ID" json:"questions"`
	Responses   []QuestionResponse  `gorm:"foreignKey:QuestionnaireID;references:ID" json:"responses"`
	CreatedAt   time.Time           `json:"-"`
	UpdatedAt   time.Time           `json:"-"`
}

func (Questionnaire) TableName() string { return "questionnaires" }

// Key returns the (country, report_date) identity used for coalescing,
// snapshots and supersede checks.
func (q *Questionnaire) Key() string {
	return SnapshotKey(q.Country, q.ReportDate)
}

// SnapshotKey builds the canonical identity for a country/report-date pair.
func SnapshotKey(country, reportDate string) string {
	return country + ":" + reportDate
}

// Progress derives the completion tuple from the current responses. A
// response counts once it is completed or approved. Percentage is 0 when the
// questionnaire has no questions.
func (q *Questionnaire) Progress() Progress {
	total := len(q.Questions)
	completed := 0
	for i := range q.Responses {
		if q.Responses[i].Status.Done() {
			completed++
		}
	}

	pct := 0
	if total > 0 {
		pct = int(math.Round(100 * float64(completed) / float64(total)))
	}

	return Progress{
		TotalQuestions:       total,
		CompletedResponses:   completed,
		CompletionPercentage: pct,
	}
}

// Categories returns the distinct question categories in first-seen order.
func (q *Questionnaire) Categories() []string {
	seen := make(map[string]bool, len(q.Questions))
	var out []string
	for i := range q.Questions {
		c := q.Questions[i].Category
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Summary derives the priority-tier counts and the immediate-attention flag.
// The flag raises only on critical questions; data_points_analyzed counts the
// distinct related-data references across all questions.
func (q *Questionnaire) Summary() Summary {
	s := Summary{
		TotalQuestions: len(q.Questions),
		Categories:     q.Categories(),
	}

	refs := make(map[string]bool)
	for i := range q.Questions {
		switch q.Questions[i].Priority {
		case PriorityHigh:
			s.HighPriority++
		case PriorityCritical:
			s.CriticalPriority++
		}
		for k := range q.Questions[i].RelatedData {
			refs[k] = true
		}
	}

	s.RequiresImmediateAttention = s.CriticalPriority > 0
	s.DataPointsAnalyzed = len(refs)
	return s
}

// ResponseFor returns the response row for a question, or nil.
func (q *Questionnaire) ResponseFor(questionID string) *QuestionResponse {
	for i := range q.Responses {
		if q.Responses[i].QuestionID == questionID {
			return &q.Responses[i]
		}
	}
	return nil
}
