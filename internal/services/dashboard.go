package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
)

// DashboardService aggregates questionnaire activity across markets.
type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardStatsRequest struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type DashboardStats struct {
	TotalQuestionnaires     int64   `json:"total_questionnaires"`
	ActiveQuestionnaires    int64   `json:"active_questionnaires"`
	CompletedQuestionnaires int64   `json:"completed_questionnaires"`
	OverdueQuestionnaires   int64   `json:"overdue_questionnaires"`
	TotalQuestions          int64   `json:"total_questions"`
	AnsweredQuestions       int64   `json:"answered_questions"`
	CompletionRate          float64 `json:"completion_rate"`
}

type CountryStats struct {
	Country           string  `json:"country"`
	Questionnaires    int64   `json:"questionnaires"`
	Active            int64   `json:"active"`
	Questions         int64   `json:"questions"`
	Answered          int64   `json:"answered"`
	CompletionRate    float64 `json:"completion_rate"`
	CriticalQuestions int64   `json:"critical_questions"`
}

type PriorityStats struct {
	Priority string `json:"priority"`
	Count    int64  `json:"count"`
}

type DashboardResponse struct {
	Stats         DashboardStats  `json:"stats"`
	CountryStats  []CountryStats  `json:"country_stats"`
	PriorityStats []PriorityStats `json:"priority_stats"`
}

// GetStats aggregates the period's questionnaires: overall counts, per-market
// completion and the open-question priority mix. The period defaults to the
// last 90 days of generation activity.
func (s *DashboardService) GetStats(req *DashboardStatsRequest) (*DashboardResponse, error) {
	var startDate, endDate time.Time
	var err error

	if req.StartDate != "" {
		startDate, err = time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			startDate = time.Now().AddDate(0, 0, -90)
		}
	} else {
		startDate = time.Now().AddDate(0, 0, -90)
	}

	if req.EndDate != "" {
		endDate, err = time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			endDate = time.Now()
		}
		endDate = endDate.Add(24*time.Hour - time.Second)
	} else {
		endDate = time.Now()
	}

	var stats DashboardStats

	s.db.Model(&models.Questionnaire{}).
		Where("generated_at BETWEEN ? AND ?", startDate, endDate).
		Count(&stats.TotalQuestionnaires)

	s.db.Model(&models.Questionnaire{}).
		Where("generated_at BETWEEN ? AND ? AND status = ?", startDate, endDate, models.QuestionnaireActive).
		Count(&stats.ActiveQuestionnaires)

	s.db.Model(&models.Questionnaire{}).
		Where("generated_at BETWEEN ? AND ? AND status = ?", startDate, endDate, models.QuestionnaireCompleted).
		Count(&stats.CompletedQuestionnaires)

	s.db.Model(&models.Questionnaire{}).
		Where("generated_at BETWEEN ? AND ? AND status = ? AND due_date < ?",
			startDate, endDate, models.QuestionnaireActive, time.Now().UTC()).
		Count(&stats.OverdueQuestionnaires)

	s.db.Model(&models.Question{}).
		Joins("JOIN questionnaires ON questionnaires.id = questions.questionnaire_id").
		Where("questionnaires.generated_at BETWEEN ? AND ?", startDate, endDate).
		Count(&stats.TotalQuestions)

	s.db.Model(&models.QuestionResponse{}).
		Joins("JOIN questionnaires ON questionnaires.id = question_responses.questionnaire_id").
		Where("questionnaires.generated_at BETWEEN ? AND ? AND question_responses.status IN ?",
			startDate, endDate, []string{string(models.StatusCompleted), string(models.StatusApproved)}).
		Count(&stats.AnsweredQuestions)

	if stats.TotalQuestions > 0 {
		stats.CompletionRate = 100 * float64(stats.AnsweredQuestions) / float64(stats.TotalQuestions)
	}

	var countryStats []CountryStats
	s.db.Model(&models.Questionnaire{}).
		Select("country, COUNT(*) as questionnaires, SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END) as active").
		Where("generated_at BETWEEN ? AND ?", startDate, endDate).
		Group("country").
		Order("country ASC").
		Scan(&countryStats)

	for i := range countryStats {
		cs := &countryStats[i]

		s.db.Model(&models.Question{}).
			Joins("JOIN questionnaires ON questionnaires.id = questions.questionnaire_id").
			Where("questionnaires.country = ? AND questionnaires.generated_at BETWEEN ? AND ?",
				cs.Country, startDate, endDate).
			Count(&cs.Questions)

		s.db.Model(&models.QuestionResponse{}).
			Joins("JOIN questionnaires ON questionnaires.id = question_responses.questionnaire_id").
			Where("questionnaires.country = ? AND questionnaires.generated_at BETWEEN ? AND ? AND question_responses.status IN ?",
				cs.Country, startDate, endDate, []string{string(models.StatusCompleted), string(models.StatusApproved)}).
			Count(&cs.Answered)

		s.db.Model(&models.Question{}).
			Joins("JOIN questionnaires ON questionnaires.id = questions.questionnaire_id").
			Where("questionnaires.country = ? AND questionnaires.generated_at BETWEEN ? AND ? AND questions.priority = ?",
				cs.Country, startDate, endDate, models.PriorityCritical).
			Count(&cs.CriticalQuestions)

		if cs.Questions > 0 {
			cs.CompletionRate = 100 * float64(cs.Answered) / float64(cs.Questions)
		}
	}

	var priorityStats []PriorityStats
	s.db.Model(&models.Question{}).
		Select("questions.priority, COUNT(*) as count").
		Joins("JOIN questionnaires ON questionnaires.id = questions.questionnaire_id").
		Where("questionnaires.generated_at BETWEEN ? AND ?", startDate, endDate).
		Group("questions.priority").
		Order("count DESC").
		Scan(&priorityStats)

	return &DashboardResponse{
		Stats:         stats,
		CountryStats:  countryStats,
		PriorityStats: priorityStats,
	}, nil
}
