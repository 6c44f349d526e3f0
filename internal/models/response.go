package models

import (
	"strings"
	"time"
)

// ResponseStatus is the lifecycle state of a response.
// pending → partial on the first non-empty edit, partial → completed on a
// valid submit, completed → partial when re-opened for editing, and approved
// only via an external approval event.
type ResponseStatus string

const (
	StatusPending   ResponseStatus = "pending"
	StatusPartial   ResponseStatus = "partial"
	StatusCompleted ResponseStatus = "completed"
	StatusApproved  ResponseStatus = "approved"
)

// Done reports whether the response counts toward questionnaire completion.
func (s ResponseStatus) Done() bool {
	return s == StatusCompleted || s == StatusApproved
}

// ConfidenceLevel is the submitter's own confidence in the answer.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// QuestionResponse is the single answer record for one question. At most one
// exists per (questionnaire, question) pair.
type QuestionResponse struct {
	ID                string          `gorm:"primaryKey;size:64" json:"id"`
	QuestionnaireID   string          `gorm:"size:64;not null;uniqueIndex:idx_response_question,priority:1" json:"-"`
	QuestionID        string          `gorm:"size:64;not null;uniqueIndex:idx_response_question,priority:2" json:"question_id"`
	ResponseText      string          `gorm:"type:text" json:"response_text,omitempty"`
	ResponseData      map[string]any  `gorm:"type:text;serializer:json" json:"response_data,omitempty"`
	ConfidenceLevel   ConfidenceLevel `gorm:"size:20;default:medium" json:"confidence_level"`
	UploadedFiles     []string        `gorm:"type:text;serializer:json" json:"uploaded_files,omitempty"`
	SubmittedAt       *time.Time      `json:"submitted_at,omitempty"`
	SubmittedBy       string          `gorm:"size:100" json:"submitted_by,omitempty"`
	Status            ResponseStatus  `gorm:"size:20;default:pending;index" json:"status"`
	AIValidated       bool            `gorm:"default:false" json:"ai_validated"`
	AIValidationScore *float64        `json:"ai_validation_score,omitempty"`
	AISuggestions     []string        `gorm:"type:text;serializer:json" json:"ai_suggestions,omitempty"`
	CreatedAt         time.Time       `json:"-"`
	UpdatedAt         time.Time       `json:"-"`
}

func (QuestionResponse) TableName() string { return "question_responses" }

// HasContent reports whether the response carries any answer material.
func (r *QuestionResponse) HasContent() bool {
	return strings.TrimSpace(r.ResponseText) != "" || len(r.ResponseData) > 0
}
