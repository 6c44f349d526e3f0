package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravindsuri/dqagent/internal/models"
)

// QuestionnaireService owns questionnaire persistence. Absence is reported
// as gorm.ErrRecordNotFound; real storage trouble comes back wrapped in a
// PersistenceFailure.
type QuestionnaireService struct {
	db *gorm.DB
}

func NewQuestionnaireService(db *gorm.DB) *QuestionnaireService {
	return &QuestionnaireService{db: db}
}

type QuestionnaireListRequest struct {
	Page     int    `form:"page" binding:"min=1"`
	PageSize int    `form:"page_size" binding:"min=1,max=100"`
	Country  string `form:"country"`
	Status   string `form:"status"`
}

type QuestionnaireListItem struct {
	ID          string                     `json:"id"`
	Country     string                     `json:"country"`
	ReportDate  string                     `json:"report_date"`
	Entity      string                     `json:"entity"`
	GeneratedAt time.Time                  `json:"generated_at"`
	DueDate     *time.Time                 `json:"due_date,omitempty"`
	Status      models.QuestionnaireStatus `json:"status"`
	Progress    models.Progress            `json:"progress"`
}

type QuestionnaireListResponse struct {
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
	Items    []QuestionnaireListItem `json:"items"`
}

// List returns paginated questionnaires, newest first, with derived progress.
func (s *QuestionnaireService) List(req *QuestionnaireListRequest) (*QuestionnaireListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var questionnaires []models.Questionnaire
	var total int64

	query := s.db.Model(&models.Questionnaire{})
	if req.Country != "" {
		query = query.Where("country = ?", req.Country)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	err := query.Preload("Questions").Preload("Responses").
		Offset(offset).Limit(req.PageSize).
		Order("generated_at DESC").Find(&questionnaires).Error
	if err != nil {
		return nil, &PersistenceFailure{Op: "list", Key: "questionnaires", Err: err}
	}

	items := make([]QuestionnaireListItem, 0, len(questionnaires))
	for i := range questionnaires {
		qn := &questionnaires[i]
		items = append(items, QuestionnaireListItem{
			ID:          qn.ID,
			Country:     qn.Country,
			ReportDate:  qn.ReportDate,
			Entity:      qn.Entity,
			GeneratedAt: qn.GeneratedAt,
			DueDate:     qn.DueDate,
			Status:      qn.Status,
			Progress:    qn.Progress(),
		})
	}

	return &QuestionnaireListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// GetByID loads one questionnaire with its questions (in rank order) and
// responses.
func (s *QuestionnaireService) GetByID(id string) (*models.Questionnaire, error) {
	var qn models.Questionnaire
	err := s.db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("order_sequence ASC") }).
		Preload("Responses").
		First(&qn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &PersistenceFailure{Op: "load", Key: id, Err: err}
	}
	return &qn, nil
}

// GetByKey loads the questionnaire for a (country, report_date) pair. At most
// one exists.
func (s *QuestionnaireService) GetByKey(country, reportDate string) (*models.Questionnaire, error) {
	var qn models.Questionnaire
	err := s.db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("order_sequence ASC") }).
		Preload("Responses").
		First(&qn, "country = ? AND report_date = ?", country, reportDate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &PersistenceFailure{Op: "load", Key: models.SnapshotKey(country, reportDate), Err: err}
	}
	return &qn, nil
}

// Replace persists qn and removes any previous questionnaire for the same
// (country, report_date) pair in the same transaction. Regeneration therefore
// never leaves two questionnaires for one pair.
func (s *QuestionnaireService) Replace(qn *models.Questionnaire) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var prev []models.Questionnaire
		if err := tx.Where("country = ? AND report_date = ?", qn.Country, qn.ReportDate).Find(&prev).Error; err != nil {
			return err
		}
		for i := range prev {
			if err := dropQuestionnaire(tx, prev[i].ID); err != nil {
				return err
			}
		}
		return tx.Create(qn).Error
	})
	if err != nil {
		return &PersistenceFailure{Op: "replace", Key: qn.Key(), Err: err}
	}
	return nil
}

// Delete removes a questionnaire and everything hanging off it.
func (s *QuestionnaireService) Delete(id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return dropQuestionnaire(tx, id)
	})
	if err != nil {
		return &PersistenceFailure{Op: "delete", Key: id, Err: err}
	}
	return nil
}

func dropQuestionnaire(tx *gorm.DB, id string) error {
	if err := tx.Where("questionnaire_id = ?", id).Delete(&models.QuestionResponse{}).Error; err != nil {
		return err
	}
	if err := tx.Where("questionnaire_id = ?", id).Delete(&models.Question{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Questionnaire{}, "id = ?", id).Error
}

// SaveResponse writes the single response row for a (questionnaire, question)
// pair. Rows loaded from the store keep their ID and are updated in place;
// first writes insert, with the unique pair index resolving the race of two
// concurrent first writes in favor of the later one.
func (s *QuestionnaireService) SaveResponse(resp *models.QuestionResponse) error {
	var err error
	if resp.ID != "" {
		err = s.db.Save(resp).Error
	} else {
		resp.ID = uuid.New().String()
		err = s.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "questionnaire_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"response_text", "response_data", "confidence_level", "uploaded_files",
				"submitted_at", "submitted_by", "status",
				"ai_validated", "ai_validation_score", "ai_suggestions", "updated_at",
			}),
		}).Create(resp).Error
	}
	if err != nil {
		return &PersistenceFailure{
			Op:  "save_response",
			Key: models.SnapshotKey(resp.QuestionnaireID, resp.QuestionID),
			Err: err,
		}
	}
	return nil
}

// GetResponse loads the response for one question, or gorm.ErrRecordNotFound
// when nothing has been saved yet.
func (s *QuestionnaireService) GetResponse(questionnaireID, questionID string) (*models.QuestionResponse, error) {
	var resp models.QuestionResponse
	err := s.db.First(&resp, "questionnaire_id = ? AND question_id = ?", questionnaireID, questionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &PersistenceFailure{Op: "load_response", Key: models.SnapshotKey(questionnaireID, questionID), Err: err}
	}
	return &resp, nil
}

// UpdateStatus moves the questionnaire aggregate status.
func (s *QuestionnaireService) UpdateStatus(id string, status models.QuestionnaireStatus) error {
	result := s.db.Model(&models.Questionnaire{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return &PersistenceFailure{Op: "update_status", Key: id, Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DueSoon returns active questionnaires whose due date falls inside the
// window starting now. Used by the reminder scheduler.
func (s *QuestionnaireService) DueSoon(window time.Duration) ([]models.Questionnaire, error) {
	now := time.Now().UTC()
	var due []models.Questionnaire
	err := s.db.
		Preload("Questions").Preload("Responses").
		Where("status = ? AND due_date IS NOT NULL AND due_date BETWEEN ? AND ?",
			models.QuestionnaireActive, now, now.Add(window)).
		Order("due_date ASC").
		Find(&due).Error
	if err != nil {
		return nil, &PersistenceFailure{Op: "due_soon", Key: "questionnaires", Err: err}
	}
	return due, nil
}
