package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// ErrResponseApproved rejects edits and submits against an approved response.
// Approval is terminal for a response.
var ErrResponseApproved = errors.New("response has been approved and can no longer change")

// keyedMutex hands out one mutex per questionnaire so every mutation of a
// questionnaire's response set funnels through a single serialization point.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) acquire(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// LifecycleService drives the response state machine: pending → partial on
// the first non-empty edit, partial → completed on a valid submit, completed
// → partial when re-opened, and approved only through an explicit approval.
type LifecycleService struct {
	store     *QuestionnaireService
	validator *ValidationEngine
	autosaver *AutosaveService
	events    *EventHub
	locks     keyedMutex
}

func NewLifecycleService(db *gorm.DB, autosaver *AutosaveService) *LifecycleService {
	return &LifecycleService{
		store:     NewQuestionnaireService(db),
		validator: NewValidationEngine(),
		autosaver: autosaver,
	}
}

// SetEvents enables SSE broadcasts for response and status changes.
func (s *LifecycleService) SetEvents(h *EventHub) { s.events = h }

type DraftRequest struct {
	QuestionnaireID string         `json:"questionnaire_id" binding:"required"`
	QuestionID      string         `json:"question_id" binding:"required"`
	ResponseText    string         `json:"response_text"`
	ResponseData    map[string]any `json:"response_data"`
	ConfidenceLevel string         `json:"confidence_level"`
	SavedBy         string         `json:"saved_by"`
}

// DraftAck reports the state a draft edit put the response into. PendingFlush
// is true while the write still sits in the autosave buffer.
type DraftAck struct {
	QuestionnaireID string                `json:"questionnaire_id"`
	QuestionID      string                `json:"question_id"`
	Status          models.ResponseStatus `json:"status"`
	PendingFlush    bool                  `json:"pending_flush"`
}

type SubmitRequest struct {
	QuestionnaireID string         `json:"questionnaire_id" binding:"required"`
	QuestionID      string         `json:"question_id" binding:"required"`
	ResponseText    string         `json:"response_text"`
	ResponseData    map[string]any `json:"response_data"`
	ConfidenceLevel string         `json:"confidence_level"`
	UploadedFiles   []string       `json:"uploaded_files"`
	SubmittedBy     string         `json:"submitted_by"`
}

type SubmitResult struct {
	ResponseID      string                `json:"response_id"`
	IsValid         bool                  `json:"is_valid"`
	ValidationScore float64               `json:"validation_score"`
	Issues          []string              `json:"issues,omitempty"`
	Suggestions     []string              `json:"suggestions,omitempty"`
	Status          models.ResponseStatus `json:"status"`
}

// SaveDraft stages an edit through the autosaver. The response moves to
// partial as soon as it carries content; a previous validation verdict is
// void once the answer changes.
func (s *LifecycleService) SaveDraft(req *DraftRequest) (*DraftAck, error) {
	unlock := s.locks.acquire(req.QuestionnaireID)
	defer unlock()

	qn, err := s.store.GetByID(req.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	if questionOf(qn, req.QuestionID) == nil {
		return nil, gorm.ErrRecordNotFound
	}

	resp := &models.QuestionResponse{
		QuestionnaireID: qn.ID,
		QuestionID:      req.QuestionID,
		Status:          models.StatusPending,
		ConfidenceLevel: models.ConfidenceMedium,
	}
	if prev := qn.ResponseFor(req.QuestionID); prev != nil {
		if prev.Status == models.StatusApproved {
			return nil, ErrResponseApproved
		}
		*resp = *prev
	}

	resp.ResponseText = req.ResponseText
	if req.ResponseData != nil {
		resp.ResponseData = req.ResponseData
	}
	if req.ConfidenceLevel != "" {
		resp.ConfidenceLevel = models.ConfidenceLevel(req.ConfidenceLevel)
	}
	if req.SavedBy != "" {
		resp.SubmittedBy = req.SavedBy
	}
	if resp.HasContent() || resp.Status.Done() {
		resp.Status = models.StatusPartial
	} else {
		resp.Status = models.StatusPending
	}
	resp.SubmittedAt = nil
	resp.AIValidated = false
	resp.AIValidationScore = nil
	resp.AISuggestions = nil

	buffered := s.autosaver != nil
	if buffered {
		s.autosaver.Stage(qn, resp)
	} else if err := s.store.SaveResponse(resp); err != nil {
		return nil, err
	}

	return &DraftAck{
		QuestionnaireID: qn.ID,
		QuestionID:      req.QuestionID,
		Status:          resp.Status,
		PendingFlush:    buffered,
	}, nil
}

// Flush forces any buffered drafts for the questionnaire to disk.
func (s *LifecycleService) Flush(questionnaireID string) error {
	if s.autosaver == nil {
		return nil
	}
	return s.autosaver.Flush(questionnaireID)
}

// Submit validates the answer against the question's rules and finalizes it.
// A failing submit is stored draft-grade (the content is kept, the status
// stays short of completed) and comes back as a *ValidationFailure, which the
// HTTP layer reports with is_valid=false rather than as a server error.
func (s *LifecycleService) Submit(req *SubmitRequest) (*SubmitResult, error) {
	unlock := s.locks.acquire(req.QuestionnaireID)
	defer unlock()

	qn, err := s.store.GetByID(req.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	question := questionOf(qn, req.QuestionID)
	if question == nil {
		return nil, gorm.ErrRecordNotFound
	}

	resp := &models.QuestionResponse{
		QuestionnaireID: qn.ID,
		QuestionID:      req.QuestionID,
		Status:          models.StatusPending,
		ConfidenceLevel: models.ConfidenceMedium,
	}
	if prev := qn.ResponseFor(req.QuestionID); prev != nil {
		if prev.Status == models.StatusApproved {
			return nil, ErrResponseApproved
		}
		*resp = *prev
	}

	// The submit payload is authoritative; a draft still sitting in the
	// buffer for this question must not land afterwards.
	if s.autosaver != nil {
		s.autosaver.Discard(req.QuestionnaireID, req.QuestionID)
	}

	resp.ResponseText = req.ResponseText
	resp.ResponseData = req.ResponseData
	if req.ConfidenceLevel != "" {
		resp.ConfidenceLevel = models.ConfidenceLevel(req.ConfidenceLevel)
	}
	if len(req.UploadedFiles) > 0 {
		resp.UploadedFiles = req.UploadedFiles
	}
	if req.SubmittedBy != "" {
		resp.SubmittedBy = req.SubmittedBy
	}

	verdict := s.validator.Validate(req.ResponseText, question.ValidationRules)
	score := verdict.Score()
	resp.AIValidated = verdict.IsValid
	resp.AIValidationScore = &score
	resp.AISuggestions = verdict.Suggestions()

	if !verdict.IsValid {
		if resp.HasContent() || resp.Status.Done() {
			resp.Status = models.StatusPartial
		} else {
			resp.Status = models.StatusPending
		}
		resp.SubmittedAt = nil
		if err := s.store.SaveResponse(resp); err != nil {
			return nil, err
		}
		s.rollup(qn, resp)
		return nil, &ValidationFailure{
			Issues:      verdict.Errors,
			Suggestions: resp.AISuggestions,
			Score:       score,
			Status:      resp.Status,
		}
	}

	now := time.Now().UTC()
	resp.SubmittedAt = &now
	resp.Status = models.StatusCompleted
	if err := s.store.SaveResponse(resp); err != nil {
		return nil, err
	}
	s.rollup(qn, resp)
	s.publish(qn.Key(), EventResponseSaved, map[string]any{
		"questionnaire_id": qn.ID,
		"question_id":      req.QuestionID,
		"status":           string(resp.Status),
	})

	return &SubmitResult{
		ResponseID:      resp.ID,
		IsValid:         true,
		ValidationScore: score,
		Suggestions:     resp.AISuggestions,
		Status:          resp.Status,
	}, nil
}

// Approve marks a response approved. The transition is driven by the
// approver's authority, not by validation state, and is terminal.
func (s *LifecycleService) Approve(questionnaireID, questionID, approvedBy string) (*models.QuestionResponse, error) {
	unlock := s.locks.acquire(questionnaireID)
	defer unlock()

	qn, err := s.store.GetByID(questionnaireID)
	if err != nil {
		return nil, err
	}
	if questionOf(qn, questionID) == nil {
		return nil, gorm.ErrRecordNotFound
	}
	prev := qn.ResponseFor(questionID)
	if prev == nil {
		return nil, gorm.ErrRecordNotFound
	}

	resp := *prev
	resp.Status = models.StatusApproved
	if err := s.store.SaveResponse(&resp); err != nil {
		return nil, err
	}
	s.rollup(qn, &resp)

	LogInfo("lifecycle", "approve",
		fmt.Sprintf("response %s/%s approved", questionnaireID, questionID),
		nil, "", map[string]any{"approved_by": approvedBy})
	s.publish(qn.Key(), EventResponseSaved, map[string]any{
		"questionnaire_id": questionnaireID,
		"question_id":      questionID,
		"status":           string(models.StatusApproved),
	})
	return &resp, nil
}

// Progress returns the derived completion tuple for a questionnaire.
func (s *LifecycleService) Progress(questionnaireID string) (*models.Progress, error) {
	qn, err := s.store.GetByID(questionnaireID)
	if err != nil {
		return nil, err
	}
	p := qn.Progress()
	return &p, nil
}

// NextQuestion returns the highest-ranked question still awaiting a completed
// answer, or nil when everything is done.
func (s *LifecycleService) NextQuestion(questionnaireID string) (*models.Question, error) {
	qn, err := s.store.GetByID(questionnaireID)
	if err != nil {
		return nil, err
	}
	return NextIncomplete(qn), nil
}

// rollup folds the updated response into the in-memory questionnaire and
// moves the aggregate status between active and completed. Archived
// questionnaires stay archived.
func (s *LifecycleService) rollup(qn *models.Questionnaire, updated *models.QuestionResponse) {
	replaced := false
	for i := range qn.Responses {
		if qn.Responses[i].QuestionID == updated.QuestionID {
			qn.Responses[i] = *updated
			replaced = true
			break
		}
	}
	if !replaced {
		qn.Responses = append(qn.Responses, *updated)
	}

	progress := qn.Progress()
	target := models.QuestionnaireActive
	if progress.TotalQuestions > 0 && progress.CompletedResponses == progress.TotalQuestions {
		target = models.QuestionnaireCompleted
	}
	if qn.Status == models.QuestionnaireArchived || qn.Status == target {
		return
	}
	if err := s.store.UpdateStatus(qn.ID, target); err != nil {
		logger.Warn().Err(err).Str("questionnaire_id", qn.ID).Msg("questionnaire status rollup failed")
		return
	}
	qn.Status = target
	s.publish(qn.Key(), EventStatusChanged, map[string]any{
		"questionnaire_id": qn.ID,
		"status":           string(target),
	})
}

func (s *LifecycleService) publish(channel, event string, payload any) {
	if s.events != nil {
		s.events.Broadcast(channel, event, payload)
	}
}

func questionOf(qn *models.Questionnaire, questionID string) *models.Question {
	for i := range qn.Questions {
		if qn.Questions[i].ID == questionID {
			return &qn.Questions[i]
		}
	}
	return nil
}
