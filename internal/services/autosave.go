package services

import (
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

const (
	defaultAutosaveDebounce = 2 * time.Second
	defaultAutosaveCeiling  = 30 * time.Second
)

// draftBuffer collects the unflushed draft rows of one questionnaire. The
// country/report-date pair is kept for the stale check at flush time.
type draftBuffer struct {
	questionnaireID string
	country         string
	reportDate      string
	firstEdit       time.Time
	timer           *time.Timer
	rows            map[string]*models.QuestionResponse
}

// AutosaveService buffers draft response writes per questionnaire and flushes
// them after a debounce window following the last edit, after a hard ceiling
// following the first unflushed edit, or on an explicit Flush, whichever
// comes first. A flush whose questionnaire has been superseded or deleted is
// discarded; a flush that fails to persist keeps its buffer and is retried
// on the next timer tick.
type AutosaveService struct {
	db       *gorm.DB
	store    *QuestionnaireService
	debounce time.Duration
	ceiling  time.Duration

	mu      sync.Mutex
	buffers map[string]*draftBuffer
}

func NewAutosaveService(db *gorm.DB, debounce, ceiling time.Duration) *AutosaveService {
	if debounce <= 0 {
		debounce = defaultAutosaveDebounce
	}
	if ceiling <= 0 {
		ceiling = defaultAutosaveCeiling
	}
	return &AutosaveService{
		db:       db,
		store:    NewQuestionnaireService(db),
		debounce: debounce,
		ceiling:  ceiling,
		buffers:  make(map[string]*draftBuffer),
	}
}

// Stage records a draft row for later persistence. Repeated edits to the same
// question within the debounce window collapse into one write; the latest row
// wins.
func (s *AutosaveService) Stage(qn *models.Questionnaire, resp *models.QuestionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[qn.ID]
	if !ok {
		buf = &draftBuffer{
			questionnaireID: qn.ID,
			country:         qn.Country,
			reportDate:      qn.ReportDate,
			firstEdit:       time.Now(),
			rows:            make(map[string]*models.QuestionResponse),
		}
		s.buffers[qn.ID] = buf
	}
	buf.rows[resp.QuestionID] = resp
	s.arm(buf)
}

// Discard drops the buffered draft for one question, typically because a
// submit just wrote the authoritative row.
func (s *AutosaveService) Discard(questionnaireID, questionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[questionnaireID]
	if !ok {
		return
	}
	delete(buf.rows, questionID)
	if len(buf.rows) == 0 {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(s.buffers, questionnaireID)
	}
}

// Pending reports how many draft rows are waiting to be flushed.
func (s *AutosaveService) Pending(questionnaireID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.buffers[questionnaireID]; ok {
		return len(buf.rows)
	}
	return 0
}

// Flush writes the buffered drafts for one questionnaire immediately,
// bypassing both timers.
func (s *AutosaveService) Flush(questionnaireID string) error {
	return s.flushBuffer(questionnaireID)
}

// FlushAll drains every buffer; used on shutdown. The first error is
// returned after all buffers have been attempted.
func (s *AutosaveService) FlushAll() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := s.flushBuffer(id); err != nil && firstErr == nil {
			var stale *StaleRequestDiscarded
			if !errors.As(err, &stale) {
				firstErr = err
			}
		}
	}
	return firstErr
}

// arm schedules the next flush: debounce after this edit, capped by the
// ceiling measured from the first unflushed edit. Caller holds s.mu.
func (s *AutosaveService) arm(buf *draftBuffer) {
	next := s.debounce
	if remaining := time.Until(buf.firstEdit.Add(s.ceiling)); remaining < next {
		next = remaining
	}
	if next < 0 {
		next = 0
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	id := buf.questionnaireID
	buf.timer = time.AfterFunc(next, func() { s.onTimer(id) })
}

func (s *AutosaveService) onTimer(questionnaireID string) {
	err := s.flushBuffer(questionnaireID)
	if err == nil {
		return
	}
	var stale *StaleRequestDiscarded
	if errors.As(err, &stale) {
		logger.Debug().Str("key", stale.Key).Msg("autosave flush discarded for superseded questionnaire")
		return
	}
	logger.Warn().Err(err).Str("questionnaire_id", questionnaireID).Msg("autosave flush failed, will retry")
}

func (s *AutosaveService) flushBuffer(questionnaireID string) error {
	s.mu.Lock()
	buf, ok := s.buffers[questionnaireID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.buffers, questionnaireID)
	if buf.timer != nil {
		buf.timer.Stop()
	}
	rows := make([]*models.QuestionResponse, 0, len(buf.rows))
	for _, row := range buf.rows {
		rows = append(rows, row)
	}
	s.mu.Unlock()

	// Stale guard: the questionnaire may have been regenerated or deleted
	// since these edits were staged. Drafts for a dead generation never land.
	var current models.Questionnaire
	err := s.db.Select("id").
		Where("country = ? AND report_date = ?", buf.country, buf.reportDate).
		First(&current).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &StaleRequestDiscarded{Key: models.SnapshotKey(buf.country, buf.reportDate)}
	case err != nil:
		s.restore(buf)
		return &PersistenceFailure{Op: "autosave_flush", Key: questionnaireID, Err: err}
	case current.ID != questionnaireID:
		return &StaleRequestDiscarded{Key: models.SnapshotKey(buf.country, buf.reportDate)}
	}

	for i, row := range rows {
		if err := s.store.SaveResponse(row); err != nil {
			buf.rows = make(map[string]*models.QuestionResponse, len(rows)-i)
			for _, left := range rows[i:] {
				buf.rows[left.QuestionID] = left
			}
			s.restore(buf)
			return err
		}
	}
	return nil
}

// restore puts unflushed rows back so the next tick retries them. Rows staged
// while the flush was running win over the ones being restored.
func (s *AutosaveService) restore(buf *draftBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.buffers[buf.questionnaireID]
	if !ok {
		s.buffers[buf.questionnaireID] = buf
		s.arm(buf)
		return
	}
	for questionID, row := range buf.rows {
		if _, staged := current.rows[questionID]; !staged {
			current.rows[questionID] = row
		}
	}
	if buf.firstEdit.Before(current.firstEdit) {
		current.firstEdit = buf.firstEdit
	}
	s.arm(current)
}
