package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/middleware"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/logger"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// QuestionnaireHandler exposes generation and the response lifecycle over
// HTTP. Generation errors map to 502, storage trouble to 503; a rejected
// submit is a 200 with is_valid=false, not an error.
type QuestionnaireHandler struct {
	gateway   *services.GenerationService
	lifecycle *services.LifecycleService
	store     *services.QuestionnaireService
	cache     services.SnapshotCache
}

func NewQuestionnaireHandler(gateway *services.GenerationService, lifecycle *services.LifecycleService, store *services.QuestionnaireService, cache services.SnapshotCache) *QuestionnaireHandler {
	return &QuestionnaireHandler{
		gateway:   gateway,
		lifecycle: lifecycle,
		store:     store,
		cache:     cache,
	}
}

type GenerateQuestionnaireRequest struct {
	Country    string   `json:"country" binding:"required"`
	ReportDate string   `json:"report_date" binding:"required"`
	FocusAreas []string `json:"focus_areas"`
}

// Generate produces the questionnaire for a (country, report_date) pair.
// POST /api/questionnaire/generate
// With ?async=true the request is queued and answered 202; the result arrives
// on the SSE channel for the pair.
func (h *QuestionnaireHandler) Generate(c *gin.Context) {
	var req GenerateQuestionnaireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	greq := &services.GenerationRequest{
		Country:    req.Country,
		ReportDate: req.ReportDate,
		FocusAreas: req.FocusAreas,
	}
	country, _, err := greq.Normalize()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if c.Query("async") == "true" {
		h.generateAsync(c, greq, country)
		return
	}

	result, err := h.gateway.Generate(c.Request.Context(), greq)
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *QuestionnaireHandler) generateAsync(c *gin.Context, req *services.GenerationRequest, country string) {
	queue := services.GetTaskQueue()
	if queue == nil {
		response.Error(c, response.NewServerError("task queue not initialized"))
		return
	}

	task := &services.GenerateTask{
		Country:     country,
		ReportDate:  req.ReportDate,
		FocusAreas:  req.FocusAreas,
		RequestedBy: middleware.GetUsername(c),
	}
	if err := queue.Enqueue(task); err != nil {
		response.Error(c, response.NewServerError("failed to queue generation: "+err.Error()))
		return
	}

	channel := models.SnapshotKey(country, req.ReportDate)
	services.GetEventHub().Broadcast(channel, services.EventGenerationQueued, map[string]any{
		"country":     country,
		"report_date": req.ReportDate,
	})
	response.Accepted(c, gin.H{
		"channel":     channel,
		"country":     country,
		"report_date": req.ReportDate,
		"async":       queue.IsAsync(),
	})
}

// CancelGenerate aborts an in-flight generation for the pair, if any.
// POST /api/questionnaire/generate/cancel
func (h *QuestionnaireHandler) CancelGenerate(c *gin.Context) {
	var req struct {
		Country    string `json:"country" binding:"required"`
		ReportDate string `json:"report_date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cancelled := h.gateway.CancelPending(req.Country, req.ReportDate)
	response.Success(c, gin.H{"cancelled": cancelled})
}

// Get returns one questionnaire with questions and responses.
// GET /api/questionnaire/:id
func (h *QuestionnaireHandler) Get(c *gin.Context) {
	qn, err := h.store.GetByID(c.Param("id"))
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, questionnaireView(qn))
}

// GetByKeyOrList serves two reads on one route: with country and report_date
// it resolves the pair (snapshot cache first, storage as fallback); without a
// report_date it returns the paginated listing.
// GET /api/questionnaire
func (h *QuestionnaireHandler) GetByKeyOrList(c *gin.Context) {
	country := strings.ToUpper(strings.TrimSpace(c.Query("country")))
	reportDate := c.Query("report_date")

	if reportDate == "" {
		h.list(c)
		return
	}
	if country == "" {
		response.BadRequest(c, "country is required with report_date")
		return
	}

	if h.cache != nil {
		if qn, err := h.cache.Get(c.Request.Context(), country, reportDate); err == nil && qn != nil {
			response.Success(c, questionnaireView(qn))
			return
		}
	}

	qn, err := h.store.GetByKey(country, reportDate)
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Store(context.Background(), qn); err != nil {
			logger.Warn().Err(err).Str("key", models.SnapshotKey(country, reportDate)).Msg("snapshot backfill failed")
		}
	}
	response.Success(c, questionnaireView(qn))
}

func (h *QuestionnaireHandler) list(c *gin.Context) {
	var req services.QuestionnaireListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Country != "" {
		req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	}

	resp, err := h.store.List(&req)
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, resp)
}

type submitResponseBody struct {
	QuestionID      string         `json:"question_id" binding:"required"`
	ResponseText    string         `json:"response_text"`
	ResponseData    map[string]any `json:"response_data"`
	ConfidenceLevel string         `json:"confidence_level"`
	UploadedFiles   []string       `json:"uploaded_files"`
}

// SubmitResponse validates and finalizes one answer. A validation reject is a
// normal outcome: 200 with is_valid=false and the issues listed.
// POST /api/questionnaire/:id/response
func (h *QuestionnaireHandler) SubmitResponse(c *gin.Context) {
	var body submitResponseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.lifecycle.Submit(&services.SubmitRequest{
		QuestionnaireID: c.Param("id"),
		QuestionID:      body.QuestionID,
		ResponseText:    body.ResponseText,
		ResponseData:    body.ResponseData,
		ConfidenceLevel: body.ConfidenceLevel,
		UploadedFiles:   body.UploadedFiles,
		SubmittedBy:     middleware.GetUsername(c),
	})
	if err != nil {
		var vf *services.ValidationFailure
		if errors.As(err, &vf) {
			response.Success(c, gin.H{
				"is_valid":         false,
				"validation_score": vf.Score,
				"issues":           vf.Issues,
				"suggestions":      vf.Suggestions,
				"status":           vf.Status,
			})
			return
		}
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, result)
}

type draftResponseBody struct {
	ResponseText    string         `json:"response_text"`
	ResponseData    map[string]any `json:"response_data"`
	ConfidenceLevel string         `json:"confidence_level"`
}

// SaveDraft stages an in-progress answer through the autosave buffer.
// PUT /api/questionnaire/:id/response/:question_id/draft
func (h *QuestionnaireHandler) SaveDraft(c *gin.Context) {
	var body draftResponseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ack, err := h.lifecycle.SaveDraft(&services.DraftRequest{
		QuestionnaireID: c.Param("id"),
		QuestionID:      c.Param("question_id"),
		ResponseText:    body.ResponseText,
		ResponseData:    body.ResponseData,
		ConfidenceLevel: body.ConfidenceLevel,
		SavedBy:         middleware.GetUsername(c),
	})
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, ack)
}

// Save forces buffered drafts for the questionnaire to disk.
// POST /api/questionnaire/:id/save
func (h *QuestionnaireHandler) Save(c *gin.Context) {
	if err := h.lifecycle.Flush(c.Param("id")); err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, gin.H{"flushed": true})
}

// ApproveResponse marks an answer approved. Approver role required; the route
// carries the middleware.
// POST /api/questionnaire/:id/response/:question_id/approve
func (h *QuestionnaireHandler) ApproveResponse(c *gin.Context) {
	resp, err := h.lifecycle.Approve(c.Param("id"), c.Param("question_id"), middleware.GetUsername(c))
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, resp)
}

// Progress returns the completion tuple for a questionnaire.
// GET /api/questionnaire/:id/progress
func (h *QuestionnaireHandler) Progress(c *gin.Context) {
	progress, err := h.lifecycle.Progress(c.Param("id"))
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, progress)
}

// NextQuestion returns the highest-ranked unanswered question, or null when
// everything is complete.
// GET /api/questionnaire/:id/next-question
func (h *QuestionnaireHandler) NextQuestion(c *gin.Context) {
	question, err := h.lifecycle.NextQuestion(c.Param("id"))
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	response.Success(c, question)
}

// Delete removes a questionnaire with its questions and responses.
// DELETE /api/questionnaire/:id
func (h *QuestionnaireHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	qn, err := h.store.GetByID(id)
	if err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	if err := h.store.Delete(id); err != nil {
		writeQuestionnaireError(c, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(context.Background(), qn.Country, qn.ReportDate); err != nil {
			logger.Warn().Err(err).Str("key", qn.Key()).Msg("snapshot invalidate failed")
		}
	}
	response.Success(c, gin.H{"deleted": id})
}

// questionnaireView is the wire shape for a full questionnaire read, with the
// derived summary and progress attached.
func questionnaireView(qn *models.Questionnaire) gin.H {
	return gin.H{
		"id":           qn.ID,
		"country":      qn.Country,
		"report_date":  qn.ReportDate,
		"entity":       qn.Entity,
		"report_file":  qn.ReportFile,
		"generated_at": qn.GeneratedAt,
		"due_date":     qn.DueDate,
		"status":       qn.Status,
		"questions":    qn.Questions,
		"responses":    qn.Responses,
		"summary":      qn.Summary(),
		"progress":     qn.Progress(),
	}
}

// writeQuestionnaireError maps service errors onto the envelope: absence is
// 404, a failed generation 502, storage trouble 503, an edit against an
// approved response 409.
func writeQuestionnaireError(c *gin.Context, err error) {
	var genErr *services.GenerationFailure
	var persistErr *services.PersistenceFailure

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "questionnaire not found")
	case errors.Is(err, services.ErrResponseApproved):
		response.Error(c, response.NewConflict(err.Error()))
	case errors.As(err, &genErr):
		response.Error(c, response.NewBadGateway(genErr.Error()))
	case errors.As(err, &persistErr):
		response.Error(c, response.NewUnavailable(persistErr.Error()))
	default:
		response.Error(c, err)
	}
}
