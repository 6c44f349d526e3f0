package services

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aravindsuri/dqagent/internal/models"
)

func newLifecycleDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Questionnaire{}, &models.Question{}, &models.QuestionResponse{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// seedQuestionnaire persists a two-question questionnaire: a critical question
// with rules and a medium one without.
func seedQuestionnaire(t *testing.T, db *gorm.DB) *models.Questionnaire {
	t.Helper()
	qn := &models.Questionnaire{
		ID:          "qn-1",
		Country:     "NL",
		ReportDate:  "2025-05-31",
		Entity:      "Netherlands B.V.",
		GeneratedAt: time.Now().UTC(),
		Status:      models.QuestionnaireActive,
		Questions: []models.Question{
			{
				ID:              "q1",
				Category:        "Overview",
				Priority:        models.PriorityCritical,
				QuestionText:    "Explain the delinquency increase.",
				ValidationRules: []string{"min_length:10", "requires_timeline"},
				OrderSequence:   1,
			},
			{
				ID:            "q2",
				Category:      "Warnings",
				Priority:      models.PriorityMedium,
				QuestionText:  "Comment on the warnings.",
				OrderSequence: 2,
			},
		},
	}
	if err := NewQuestionnaireService(db).Replace(qn); err != nil {
		t.Fatalf("failed to seed questionnaire: %v", err)
	}
	return qn
}

func TestSubmit_InvalidKeepsPartial(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	_, err := svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1",
		QuestionID:      "q1",
		ResponseText:    "Too short",
	})

	var vf *ValidationFailure
	if !errors.As(err, &vf) {
		t.Fatalf("Expected ValidationFailure, got %v", err)
	}
	if vf.Status != models.StatusPartial {
		t.Errorf("Expected status partial, got '%s'", vf.Status)
	}
	if len(vf.Issues) != 2 {
		t.Errorf("Expected 2 issues, got %v", vf.Issues)
	}
	foundTimeline := false
	for _, issue := range vf.Issues {
		if strings.Contains(issue, "timeline") {
			foundTimeline = true
		}
	}
	if !foundTimeline {
		t.Errorf("Expected a timeline issue, got %v", vf.Issues)
	}
	if vf.Score != 0 {
		t.Errorf("Expected score 0 with both rules failing, got %v", vf.Score)
	}

	stored, err := NewQuestionnaireService(db).GetResponse("qn-1", "q1")
	if err != nil {
		t.Fatalf("GetResponse failed: %v", err)
	}
	if stored.Status != models.StatusPartial {
		t.Errorf("Expected stored status partial, got '%s'", stored.Status)
	}
	if stored.SubmittedAt != nil {
		t.Error("Expected submitted_at to stay unset on a failed submit")
	}
	if stored.ResponseText != "Too short" {
		t.Errorf("Expected the answer content to be kept, got '%s'", stored.ResponseText)
	}
}

func TestSubmit_EmptyInvalidStaysPending(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	_, err := svc.Submit(&SubmitRequest{QuestionnaireID: "qn-1", QuestionID: "q1"})
	var vf *ValidationFailure
	if !errors.As(err, &vf) {
		t.Fatalf("Expected ValidationFailure, got %v", err)
	}
	if vf.Status != models.StatusPending {
		t.Errorf("Expected empty submit to stay pending, got '%s'", vf.Status)
	}
}

func TestSubmit_ValidCompletes(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	result, err := svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1",
		QuestionID:      "q1",
		ResponseText:    "We reconciled the ledger and expect the backlog cleared by Q3 2025.",
		SubmittedBy:     "analyst",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.IsValid {
		t.Error("Expected is_valid true")
	}
	if result.Status != models.StatusCompleted {
		t.Errorf("Expected status completed, got '%s'", result.Status)
	}
	if result.ValidationScore != 1.0 {
		t.Errorf("Expected score 1.0, got %v", result.ValidationScore)
	}

	stored, err := NewQuestionnaireService(db).GetResponse("qn-1", "q1")
	if err != nil {
		t.Fatalf("GetResponse failed: %v", err)
	}
	if stored.SubmittedAt == nil {
		t.Error("Expected submitted_at to be set")
	}
	if stored.SubmittedBy != "analyst" {
		t.Errorf("Expected submitted_by 'analyst', got '%s'", stored.SubmittedBy)
	}
}

func TestSubmit_UnknownQuestion(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	_, err := svc.Submit(&SubmitRequest{QuestionnaireID: "qn-1", QuestionID: "missing", ResponseText: "x"})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestLifecycle_CompletionRollup(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)
	store := NewQuestionnaireService(db)

	_, err := svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1", QuestionID: "q1",
		ResponseText: "Delinquency rose because of two fleet defaults, recovery planned for Q4 2025.",
	})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	qn, _ := store.GetByID("qn-1")
	if qn.Status != models.QuestionnaireActive {
		t.Errorf("Expected questionnaire to stay active at 1/2, got '%s'", qn.Status)
	}

	_, err = svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1", QuestionID: "q2",
		ResponseText: "Warnings reviewed, no further action needed.",
	})
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}

	qn, _ = store.GetByID("qn-1")
	if qn.Status != models.QuestionnaireCompleted {
		t.Errorf("Expected questionnaire completed at 2/2, got '%s'", qn.Status)
	}

	progress := qn.Progress()
	if progress.CompletionPercentage != 100 {
		t.Errorf("Expected 100%%, got %d", progress.CompletionPercentage)
	}
}

func TestSaveDraft_PendingToPartial(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	ack, err := svc.SaveDraft(&DraftRequest{
		QuestionnaireID: "qn-1",
		QuestionID:      "q1",
		ResponseText:    "Working on the reconciliation",
	})
	if err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if ack.Status != models.StatusPartial {
		t.Errorf("Expected partial after a content edit, got '%s'", ack.Status)
	}
	if ack.PendingFlush {
		t.Error("Expected direct write without an autosaver")
	}

	stored, err := NewQuestionnaireService(db).GetResponse("qn-1", "q1")
	if err != nil {
		t.Fatalf("GetResponse failed: %v", err)
	}
	if stored.Status != models.StatusPartial {
		t.Errorf("Expected stored partial, got '%s'", stored.Status)
	}
}

func TestSaveDraft_EmptyStaysPending(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	ack, err := svc.SaveDraft(&DraftRequest{QuestionnaireID: "qn-1", QuestionID: "q1"})
	if err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if ack.Status != models.StatusPending {
		t.Errorf("Expected pending without content, got '%s'", ack.Status)
	}
}

func TestSaveDraft_ReopensCompleted(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	_, err := svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1", QuestionID: "q1",
		ResponseText: "Resolved because of reprocessing, closed in June 2025.",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ack, err := svc.SaveDraft(&DraftRequest{
		QuestionnaireID: "qn-1",
		QuestionID:      "q1",
		ResponseText:    "Actually the amount needs rechecking",
	})
	if err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if ack.Status != models.StatusPartial {
		t.Errorf("Expected re-edit to move completed back to partial, got '%s'", ack.Status)
	}

	stored, _ := NewQuestionnaireService(db).GetResponse("qn-1", "q1")
	if stored.Status != models.StatusPartial {
		t.Errorf("Expected stored partial, got '%s'", stored.Status)
	}
	if stored.SubmittedAt != nil {
		t.Error("Expected submitted_at cleared by the re-edit")
	}
	if stored.AIValidated {
		t.Error("Expected the previous validation verdict to be void")
	}
}

func TestApprove(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	_, err := svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1", QuestionID: "q1",
		ResponseText: "Figures reconciled because of the June 2025 correction run.",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	resp, err := svc.Approve("qn-1", "q1", "risk-analyst")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if resp.Status != models.StatusApproved {
		t.Errorf("Expected approved, got '%s'", resp.Status)
	}

	// Approval is terminal.
	if _, err := svc.SaveDraft(&DraftRequest{QuestionnaireID: "qn-1", QuestionID: "q1", ResponseText: "edit"}); !errors.Is(err, ErrResponseApproved) {
		t.Errorf("Expected ErrResponseApproved on draft, got %v", err)
	}
	if _, err := svc.Submit(&SubmitRequest{QuestionnaireID: "qn-1", QuestionID: "q1", ResponseText: "resubmit"}); !errors.Is(err, ErrResponseApproved) {
		t.Errorf("Expected ErrResponseApproved on submit, got %v", err)
	}
}

func TestApprove_WithoutResponse(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	_, err := svc.Approve("qn-1", "q2", "risk-analyst")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound for an unanswered question, got %v", err)
	}
}

func TestNextQuestion_RankOrder(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	svc := NewLifecycleService(db, nil)

	next, err := svc.NextQuestion("qn-1")
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	if next == nil || next.ID != "q1" {
		t.Fatalf("Expected the critical question first, got %+v", next)
	}

	_, err = svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1", QuestionID: "q1",
		ResponseText: "Addressed because of the fleet default, fixed in Q3 2025.",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	next, _ = svc.NextQuestion("qn-1")
	if next == nil || next.ID != "q2" {
		t.Fatalf("Expected q2 after q1 completes, got %+v", next)
	}

	if _, err := svc.Submit(&SubmitRequest{QuestionnaireID: "qn-1", QuestionID: "q2", ResponseText: "Reviewed."}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	next, _ = svc.NextQuestion("qn-1")
	if next != nil {
		t.Errorf("Expected nil when everything is answered, got %+v", next)
	}
}

func TestAutosave_DebounceFlush(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	autosaver := NewAutosaveService(db, 40*time.Millisecond, 2*time.Second)
	svc := NewLifecycleService(db, autosaver)
	store := NewQuestionnaireService(db)

	ack, err := svc.SaveDraft(&DraftRequest{
		QuestionnaireID: "qn-1",
		QuestionID:      "q1",
		ResponseText:    "buffered draft",
	})
	if err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if !ack.PendingFlush {
		t.Error("Expected the draft to sit in the buffer")
	}
	if autosaver.Pending("qn-1") != 1 {
		t.Errorf("Expected 1 pending row, got %d", autosaver.Pending("qn-1"))
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := store.GetResponse("qn-1", "q1"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("draft was not flushed within 1s")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if autosaver.Pending("qn-1") != 0 {
		t.Errorf("Expected buffer drained after flush, got %d", autosaver.Pending("qn-1"))
	}
}

func TestAutosave_CeilingFlushUnderContinuousEdits(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	// Edits arrive faster than the debounce window, so only the ceiling can
	// trigger a flush while they keep coming.
	autosaver := NewAutosaveService(db, 80*time.Millisecond, 200*time.Millisecond)
	svc := NewLifecycleService(db, autosaver)
	store := NewQuestionnaireService(db)

	flushed := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.SaveDraft(&DraftRequest{
			QuestionnaireID: "qn-1",
			QuestionID:      "q1",
			ResponseText:    "continuously edited draft",
		}); err != nil {
			t.Fatalf("SaveDraft failed: %v", err)
		}
		if _, err := store.GetResponse("qn-1", "q1"); err == nil {
			flushed = true
			break
		}
		time.Sleep(30 * time.Millisecond)
	}
	if !flushed {
		t.Fatal("expected a ceiling flush while edits kept arriving")
	}
	if err := autosaver.Flush("qn-1"); err != nil {
		t.Fatalf("draining the leftover buffer failed: %v", err)
	}
}

func TestSubmit_DiscardsBufferedDraft(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	autosaver := NewAutosaveService(db, 60*time.Millisecond, 2*time.Second)
	svc := NewLifecycleService(db, autosaver)
	store := NewQuestionnaireService(db)

	if _, err := svc.SaveDraft(&DraftRequest{
		QuestionnaireID: "qn-1",
		QuestionID:      "q1",
		ResponseText:    "stale draft",
	}); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	_, err := svc.Submit(&SubmitRequest{
		QuestionnaireID: "qn-1", QuestionID: "q1",
		ResponseText: "Final answer because of the reconciliation finished in Q2 2025.",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Wait past the debounce window; the stale draft must not land on top.
	time.Sleep(150 * time.Millisecond)
	stored, err := store.GetResponse("qn-1", "q1")
	if err != nil {
		t.Fatalf("GetResponse failed: %v", err)
	}
	if stored.ResponseText != "Final answer because of the reconciliation finished in Q2 2025." {
		t.Errorf("Expected the submit to win over the buffered draft, got '%s'", stored.ResponseText)
	}
	if stored.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got '%s'", stored.Status)
	}
}

func TestAutosaveFlush_DiscardedAfterRegeneration(t *testing.T) {
	db := newLifecycleDB(t)
	old := seedQuestionnaire(t, db)
	autosaver := NewAutosaveService(db, time.Hour, 2*time.Hour)
	svc := NewLifecycleService(db, autosaver)
	store := NewQuestionnaireService(db)

	if _, err := svc.SaveDraft(&DraftRequest{
		QuestionnaireID: old.ID,
		QuestionID:      "q1",
		ResponseText:    "draft for the old generation",
	}); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	// Regenerating replaces the questionnaire for the pair with a new identity.
	replacement := &models.Questionnaire{
		ID:          "qn-2",
		Country:     "NL",
		ReportDate:  "2025-05-31",
		GeneratedAt: time.Now().UTC(),
		Status:      models.QuestionnaireActive,
		Questions: []models.Question{
			{ID: "q1b", Category: "Overview", Priority: models.PriorityHigh, QuestionText: "Fresh question.", OrderSequence: 1},
		},
	}
	if err := store.Replace(replacement); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	err := autosaver.Flush(old.ID)
	var stale *StaleRequestDiscarded
	if !errors.As(err, &stale) {
		t.Fatalf("Expected StaleRequestDiscarded, got %v", err)
	}

	// No draft row may exist for either generation.
	if _, err := store.GetResponse(old.ID, "q1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected no row for the superseded questionnaire, got %v", err)
	}
	if _, err := store.GetResponse("qn-2", "q1b"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected no row for the replacement, got %v", err)
	}
}

func TestReplace_SupersedesPreviousQuestionnaire(t *testing.T) {
	db := newLifecycleDB(t)
	seedQuestionnaire(t, db)
	store := NewQuestionnaireService(db)

	replacement := &models.Questionnaire{
		ID:          "qn-2",
		Country:     "NL",
		ReportDate:  "2025-05-31",
		GeneratedAt: time.Now().UTC(),
		Status:      models.QuestionnaireActive,
		Questions: []models.Question{
			{ID: "q1b", Category: "Errors", Priority: models.PriorityHigh, QuestionText: "New question.", OrderSequence: 1},
		},
	}
	if err := store.Replace(replacement); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if _, err := store.GetByID("qn-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected the previous questionnaire to be gone, got %v", err)
	}
	current, err := store.GetByKey("NL", "2025-05-31")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if current.ID != "qn-2" {
		t.Errorf("Expected the replacement to be current, got '%s'", current.ID)
	}
	if len(current.Questions) != 1 || current.Questions[0].ID != "q1b" {
		t.Errorf("Expected the new question set, got %+v", current.Questions)
	}
}
