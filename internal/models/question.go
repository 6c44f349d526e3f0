package models

import "time"

// Priority is the ranking tier of a question.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight maps a priority tier to its ranking weight. Unknown tiers sort below
// low rather than failing.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Report sections a question can be raised against. Categories are free-form
// strings on the wire; these are the ones the built-in analyzer emits.
const (
	CategoryOverview       = "Overview"
	CategoryWriteoffs      = "Writeoffs"
	CategoryErrors         = "Errors"
	CategoryWarnings       = "Warnings"
	CategoryAdditionalInfo = "Additional Information"
)

// ResponseType declares how a question expects to be answered.
type ResponseType string

const (
	ResponseTypeText           ResponseType = "text"
	ResponseTypeFileUpload     ResponseType = "file_upload"
	ResponseTypeStructured     ResponseType = "structured"
	ResponseTypeMultipleChoice ResponseType = "multiple_choice"
)

// Question is one generated data-quality question. Questions are immutable
// once their questionnaire has been created; order_sequence is unique within
// a questionnaire.
type Question struct {
	ID                   string         `gorm:"primaryKey;size:64" json:"id"`
	QuestionnaireID      string         `gorm:"index;size:64;not null" json:"-"`
	Category             string         `gorm:"size:100;index" json:"category"`
	Priority             Priority       `gorm:"size:20;index" json:"priority"`
	QuestionText         string         `gorm:"type:text;not null" json:"question_text"`
	Context              string         `gorm:"type:text" json:"context"`
	ExpectedResponseType ResponseType   `gorm:"size:30;default:text" json:"expected_response_type"`
	ValidationRules      []string       `gorm:"type:text;serializer:json" json:"validation_rules"`
	RelatedData          map[string]any `gorm:"type:text;serializer:json" json:"related_data"`
	FollowUpQuestions    []string       `gorm:"type:text;serializer:json" json:"follow_up_questions,omitempty"`
	OrderSequence        int            `gorm:"not null" json:"order_sequence"`
	GeneratedByAI        bool           `gorm:"default:false" json:"generated_by_ai"`
	ConfidenceScore      *float64       `json:"confidence_score,omitempty"`
	CreatedAt            time.Time      `json:"-"`
}

func (Question) TableName() string { return "questions" }
