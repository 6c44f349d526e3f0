package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// ReportDateLayout is the wire format for report dates.
const ReportDateLayout = "2006-01-02"

// ErrNoCandidates signals that a candidate source came back empty.
var ErrNoCandidates = errors.New("candidate source produced no questions")

// QuestionCandidate is a raw question emitted by a candidate source before
// the gateway normalizes it. The JSON shape doubles as the contract for AI
// provider output.
type QuestionCandidate struct {
	ID                   string              `json:"id,omitempty"`
	Category             string              `json:"category"`
	Priority             string              `json:"priority"`
	QuestionText         string              `json:"question_text"`
	Context              string              `json:"context,omitempty"`
	ExpectedResponseType models.ResponseType `json:"expected_response_type,omitempty"`
	ValidationRules      []string            `json:"validation_rules,omitempty"`
	RelatedData          map[string]any      `json:"related_data,omitempty"`
	FollowUpQuestions    []string            `json:"follow_up_questions,omitempty"`
	OrderSequence        int                 `json:"order_sequence,omitempty"`
	GeneratedByAI        bool                `json:"-"`
	ConfidenceScore      *float64            `json:"confidence_score,omitempty"`
}

// GenerationRequest identifies the questionnaire to generate.
type GenerationRequest struct {
	Country    string   `json:"country" binding:"required"`
	ReportDate string   `json:"report_date" binding:"required"`
	FocusAreas []string `json:"focus_areas"`

	// Thresholds are resolved by the gateway for this run; sources use them
	// for anomaly detection and prompt findings.
	Thresholds AnalyzerThresholds `json:"-"`
}

// Normalize upper-cases the country and checks the report date layout.
func (r *GenerationRequest) Normalize() (string, time.Time, error) {
	country := strings.ToUpper(strings.TrimSpace(r.Country))
	if country == "" {
		return "", time.Time{}, errors.New("country is required")
	}
	date, err := time.Parse(ReportDateLayout, r.ReportDate)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("report_date must be %s: %w", ReportDateLayout, err)
	}
	return country, date, nil
}

// CandidateSource produces question candidates for one report.
type CandidateSource interface {
	Name() string
	Generate(ctx context.Context, req *GenerationRequest, report *models.DQReport) ([]QuestionCandidate, error)
}

// SourceChain tries each source in order until one yields candidates. This is
// how the AI provider chain falls back to the built-in analyzer.
type SourceChain []CandidateSource

func (c SourceChain) Name() string { return "chain" }

func (c SourceChain) Generate(ctx context.Context, req *GenerationRequest, report *models.DQReport) ([]QuestionCandidate, error) {
	if len(c) == 0 {
		return nil, ErrNoCandidates
	}
	var lastErr error
	for _, src := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands, err := src.Generate(ctx, req, report)
		if err == nil && len(cands) > 0 {
			return cands, nil
		}
		if err == nil {
			err = ErrNoCandidates
		}
		lastErr = err
		logger.Debug().Err(err).Str("source", src.Name()).Msg("candidate source yielded nothing, trying next")
	}
	return nil, lastErr
}

// GenerationResult is the client-facing view of a freshly generated
// questionnaire.
type GenerationResult struct {
	QuestionnaireID string            `json:"questionnaire_id"`
	Country         string            `json:"country"`
	Entity          string            `json:"entity"`
	ReportDate      string            `json:"report_date"`
	DueDate         *time.Time        `json:"due_date,omitempty"`
	Questions       []models.Question `json:"questions"`
	Summary         models.Summary    `json:"summary"`
}

type inflightGeneration struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *GenerationResult
	err    error
}

// GenerationService is the gateway between raw DQ reports and persisted
// questionnaires. Concurrent requests for the same (country, report_date)
// pair share one upstream call; a successful run replaces any previous
// questionnaire for the pair.
type GenerationService struct {
	db       *gorm.DB
	store    *QuestionnaireService
	reports  *ReportService
	source   CandidateSource
	dueDates *DueDateService
	sysCfg   *SystemConfigService
	cache    SnapshotCache
	notifier *NotificationService
	events   *EventHub
	cfg      config.GenerationConfig

	mu       sync.Mutex
	inflight map[string]*inflightGeneration
}

func NewGenerationService(db *gorm.DB, cfg *config.Config, source CandidateSource) *GenerationService {
	return &GenerationService{
		db:       db,
		store:    NewQuestionnaireService(db),
		reports:  NewReportService(cfg.Reports.Dir),
		source:   source,
		dueDates: NewDueDateService(cfg.Generation.DueDateBusinessDays),
		sysCfg:   NewSystemConfigService(db),
		cfg:      cfg.Generation,
		inflight: make(map[string]*inflightGeneration),
	}
}

// SetSnapshotCache enables snapshot writes after each successful generation.
func (s *GenerationService) SetSnapshotCache(c SnapshotCache) { s.cache = c }

// SetNotifier enables webhook alerts for questionnaires that require
// immediate attention.
func (s *GenerationService) SetNotifier(n *NotificationService) { s.notifier = n }

// SetEvents enables SSE broadcasts on generation completion and failure.
func (s *GenerationService) SetEvents(h *EventHub) { s.events = h }

// Generate produces (or joins an in-flight production of) the questionnaire
// for the requested pair. All callers waiting on the same pair receive the
// same result. A caller whose context ends stops waiting; the generation
// itself keeps running and still persists.
func (s *GenerationService) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	country, reportDate, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	key := models.SnapshotKey(country, reportDate.Format(ReportDateLayout))

	s.mu.Lock()
	if call, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		return awaitGeneration(ctx, call)
	}
	genCtx, cancel := context.WithCancel(context.Background())
	call := &inflightGeneration{cancel: cancel, done: make(chan struct{})}
	s.inflight[key] = call
	s.mu.Unlock()

	go func() {
		defer cancel()
		result, err := s.generate(genCtx, key, country, reportDate, req.FocusAreas)
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
		call.result, call.err = result, err
		close(call.done)
	}()

	return awaitGeneration(ctx, call)
}

// CancelPending aborts an in-flight generation for the pair, if any. Waiters
// receive a GenerationFailure wrapping context.Canceled.
func (s *GenerationService) CancelPending(country, reportDate string) bool {
	key := models.SnapshotKey(strings.ToUpper(strings.TrimSpace(country)), reportDate)
	s.mu.Lock()
	call, ok := s.inflight[key]
	s.mu.Unlock()
	if ok {
		call.cancel()
	}
	return ok
}

func awaitGeneration(ctx context.Context, call *inflightGeneration) (*GenerationResult, error) {
	select {
	case <-call.done:
		return call.result, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *GenerationService) generate(ctx context.Context, key, country string, reportDate time.Time, focusAreas []string) (*GenerationResult, error) {
	started := time.Now()
	dateStr := reportDate.Format(ReportDateLayout)
	log := logger.Get().With().Str("country", country).Str("report_date", dateStr).Logger()
	s.publish(key, EventGenerationStarted, map[string]any{"country": country, "report_date": dateStr})

	report, err := s.reports.Load(country, reportDate)
	if err != nil {
		return nil, &GenerationFailure{Country: country, ReportDate: dateStr, Err: err}
	}

	thresholds := s.thresholds()
	if report.RiskAnalysis == nil {
		report.RiskAnalysis = AnalyzeReport(report, thresholds)
	}

	req := &GenerationRequest{Country: country, ReportDate: dateStr, FocusAreas: focusAreas, Thresholds: thresholds}
	candidates, err := s.collectCandidates(ctx, req, report)
	if err != nil {
		log.Error().Err(err).Msg("question generation failed")
		s.publish(key, EventGenerationFailed, map[string]any{"country": country, "report_date": dateStr, "error": err.Error()})
		return nil, &GenerationFailure{Country: country, ReportDate: dateStr, Err: err}
	}

	qnID := uuid.New().String()
	questions := dedupeQuestions(normalizeCandidates(candidates, qnID))
	if len(questions) == 0 {
		return nil, &GenerationFailure{Country: country, ReportDate: dateStr, Err: ErrNoCandidates}
	}
	questions = RankQuestions(questions)
	for i := range questions {
		questions[i].OrderSequence = i + 1
	}

	entity := strings.TrimSpace(report.Metadata.DeliveringEntityName)
	if entity == "" {
		var c models.Country
		if err := s.db.Where("code = ?", country).First(&c).Error; err == nil {
			entity = c.EntityName
		}
	}
	if entity == "" {
		entity = "Unknown"
	}

	due := s.dueDates.DueDate(country, reportDate)
	qn := &models.Questionnaire{
		ID:          qnID,
		Country:     country,
		ReportDate:  dateStr,
		Entity:      entity,
		ReportFile:  ReportFileName(country, reportDate),
		GeneratedAt: time.Now().UTC(),
		DueDate:     &due,
		Status:      models.QuestionnaireActive,
		Questions:   questions,
	}

	if err := s.store.Replace(qn); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Store(context.Background(), qn); err != nil {
			log.Warn().Err(err).Msg("snapshot cache store failed")
		}
	}

	summary := qn.Summary()
	result := &GenerationResult{
		QuestionnaireID: qn.ID,
		Country:         qn.Country,
		Entity:          qn.Entity,
		ReportDate:      qn.ReportDate,
		DueDate:         qn.DueDate,
		Questions:       qn.Questions,
		Summary:         summary,
	}

	log.Info().
		Int("questions", len(questions)).
		Str("risk_level", report.RiskAnalysis.RiskLevel).
		Bool("immediate_attention", summary.RequiresImmediateAttention).
		Dur("elapsed", time.Since(started)).
		Msg("questionnaire generated")
	LogInfo("generation", "generate",
		fmt.Sprintf("generated %d questions for %s", len(questions), key),
		nil, "", map[string]any{"risk_level": report.RiskAnalysis.RiskLevel})

	if summary.RequiresImmediateAttention && s.notifier != nil {
		go s.notifier.SendAttentionAlert(qn, summary)
	}
	s.publish(key, EventGenerationCompleted, result)

	return result, nil
}

// collectCandidates calls the candidate source with exponential backoff. An
// empty result counts as a failure so a flaky provider gets retried before
// the run is abandoned.
func (s *GenerationService) collectCandidates(ctx context.Context, req *GenerationRequest, report *models.DQReport) ([]QuestionCandidate, error) {
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := s.source.Generate(ctx, req, report)
		if err == nil && len(candidates) > 0 {
			return candidates, nil
		}
		if err == nil {
			err = ErrNoCandidates
		}
		lastErr = err
		logger.Warn().Err(err).Str("source", s.source.Name()).Int("attempt", attempt).Msg("candidate collection attempt failed")

		if attempt < maxAttempts {
			if err := sleepContext(ctx, s.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (s *GenerationService) backoff(attempt int) time.Duration {
	base := time.Duration(s.cfg.BackoffBaseMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	limit := time.Duration(s.cfg.BackoffCapMs) * time.Millisecond
	if limit <= 0 {
		limit = 8 * time.Second
	}
	d := base << (attempt - 1)
	if d > limit {
		d = limit
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *GenerationService) thresholds() AnalyzerThresholds {
	return resolveThresholds(s.sysCfg, s.cfg)
}

// resolveThresholds layers system-config overrides on the config-file
// analyzer defaults.
func resolveThresholds(sysCfg *SystemConfigService, cfg config.GenerationConfig) AnalyzerThresholds {
	t := AnalyzerThresholds{
		DelinquencyAmount:  cfg.DelinquencyThreshold,
		SignificantChanges: cfg.SignificantChanges,
		HighImpactChanges:  cfg.HighImpactChanges,
	}
	if sysCfg != nil {
		t.DelinquencyAmount = sysCfg.GetFloat("delinquency_threshold", t.DelinquencyAmount)
		t.SignificantChanges = sysCfg.GetInt("significant_change_count", t.SignificantChanges)
		t.HighImpactChanges = sysCfg.GetInt("high_impact_change_count", t.HighImpactChanges)
	}
	return t
}

func (s *GenerationService) publish(channel, event string, payload any) {
	if s.events != nil {
		s.events.Broadcast(channel, event, payload)
	}
}

// normalizeCandidates turns raw candidates into persistable questions. Blank
// question texts are dropped, missing or colliding IDs get UUIDs, unknown
// priorities fall back to medium and unknown response types to text. A
// candidate without an order sequence gets its first-seen position.
func normalizeCandidates(cands []QuestionCandidate, questionnaireID string) []models.Question {
	questions := make([]models.Question, 0, len(cands))
	seen := make(map[string]bool, len(cands))
	for i, c := range cands {
		text := strings.TrimSpace(c.QuestionText)
		if text == "" {
			continue
		}

		id := strings.TrimSpace(c.ID)
		if id == "" || seen[id] {
			id = uuid.New().String()
		}
		seen[id] = true

		priority := models.Priority(strings.ToLower(strings.TrimSpace(c.Priority)))
		if priority.Weight() == 0 {
			priority = models.PriorityMedium
		}

		responseType := c.ExpectedResponseType
		switch responseType {
		case models.ResponseTypeText, models.ResponseTypeFileUpload, models.ResponseTypeStructured, models.ResponseTypeMultipleChoice:
		default:
			responseType = models.ResponseTypeText
		}

		seq := c.OrderSequence
		if seq <= 0 {
			seq = i + 1
		}

		questions = append(questions, models.Question{
			ID:                   id,
			QuestionnaireID:      questionnaireID,
			Category:             strings.TrimSpace(c.Category),
			Priority:             priority,
			QuestionText:         text,
			Context:              strings.TrimSpace(c.Context),
			ExpectedResponseType: responseType,
			ValidationRules:      c.ValidationRules,
			RelatedData:          c.RelatedData,
			FollowUpQuestions:    c.FollowUpQuestions,
			OrderSequence:        seq,
			GeneratedByAI:        c.GeneratedByAI,
			ConfidenceScore:      c.ConfidenceScore,
		})
	}
	return questions
}

// dedupeQuestions drops near-duplicates: same category, overlapping
// related-data keys and identical text after whitespace and case folding.
// The earlier question wins.
func dedupeQuestions(questions []models.Question) []models.Question {
	out := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		dup := false
		for i := range out {
			if sameQuestion(&out[i], &q) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, q)
		}
	}
	return out
}

func sameQuestion(a, b *models.Question) bool {
	if !strings.EqualFold(strings.TrimSpace(a.Category), strings.TrimSpace(b.Category)) {
		return false
	}
	if collapseText(a.QuestionText) != collapseText(b.QuestionText) {
		return false
	}
	return relatedKeysOverlap(a.RelatedData, b.RelatedData)
}

func collapseText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// relatedKeysOverlap reports whether two related-data maps share a key. Two
// empty maps count as overlapping so textually identical questions without
// data references still collapse.
func relatedKeysOverlap(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
