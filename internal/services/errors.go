package services

import (
	"fmt"

	"github.com/aravindsuri/dqagent/internal/models"
)

// GenerationFailure reports that no questionnaire could be produced for a
// country/report-date pair: the report was unreadable, every candidate source
// failed, or the candidate set stayed empty after retries. No partial
// questionnaire is exposed alongside it.
type GenerationFailure struct {
	Country    string
	ReportDate string
	Err        error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("question generation failed for %s/%s: %v", e.Country, e.ReportDate, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// ValidationFailure reports a rejected submit. It is recoverable: the
// response is stored draft-grade, keeps a non-completed status, and the
// issues go back to the caller.
type ValidationFailure struct {
	Issues      []string
	Suggestions []string
	Score       float64
	Status      models.ResponseStatus
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("response failed validation (%d issues)", len(e.Issues))
}

// PersistenceFailure reports a failed snapshot or response write. Autosave
// retries it on the next timer tick; callers see a non-blocking indicator.
type PersistenceFailure struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persistence failed during %s for %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// StaleRequestDiscarded signals that a completed async operation's result was
// dropped because the active selection changed. Never user-visible; logged at
// debug level only.
type StaleRequestDiscarded struct {
	Key string
}

func (e *StaleRequestDiscarded) Error() string {
	return fmt.Sprintf("stale result discarded for %s", e.Key)
}
