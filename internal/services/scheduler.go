package services

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

const (
	defaultReminderCron = "0 8 * * *"

	// reminderLockTTL is how long a reminder run holds the scheduler lock.
	// Short enough that a manually triggered run later the same day can
	// take over, long enough to cover a slow run.
	reminderLockTTL = 10 * time.Minute
)

// ReminderScheduler drives the due-date reminder job. The cron expression
// lives in system config so admins can retune it; ApplySchedule reschedules
// a changed expression without a restart.
type ReminderScheduler struct {
	db       *gorm.DB
	store    *QuestionnaireService
	notifier *NotificationService
	sysCfg   *SystemConfigService

	cron    *cron.Cron
	entryID cron.EntryID
	expr    string
	mu      sync.Mutex
}

func NewReminderScheduler(db *gorm.DB, notifier *NotificationService) *ReminderScheduler {
	return &ReminderScheduler{
		db:       db,
		store:    NewQuestionnaireService(db),
		notifier: notifier,
		sysCfg:   NewSystemConfigService(db),
	}
}

func (s *ReminderScheduler) Start() {
	s.cron = cron.New()
	s.ApplySchedule()
	s.cron.Start()
	logger.Info().Msg("reminder scheduler started")
}

func (s *ReminderScheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// ApplySchedule reads the cron expression from system config and replaces
// the scheduled entry when the expression changed.
func (s *ReminderScheduler) ApplySchedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	expr := s.sysCfg.GetWithDefault("reminder_cron", defaultReminderCron)
	if expr == s.expr && s.entryID != 0 {
		return
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	entryID, err := s.cron.AddFunc(expr, s.RunReminders)
	if err != nil {
		logger.Error().Err(err).Str("cron", expr).Msg("invalid reminder cron, using default")
		expr = defaultReminderCron
		entryID, err = s.cron.AddFunc(expr, s.RunReminders)
		if err != nil {
			logger.Error().Err(err).Msg("failed to schedule reminder job")
			return
		}
	}

	s.entryID = entryID
	s.expr = expr
	logger.Info().Str("cron", expr).Msg("reminder job scheduled")
}

// RunReminders notifies the webhooks for every active questionnaire nearing
// its due date with open questions.
func (s *ReminderScheduler) RunReminders() {
	if !s.sysCfg.GetBool("reminder_enabled", true) {
		logger.Debug().Msg("reminders disabled, skipping run")
		return
	}

	if !s.acquireLock("reminders", time.Now().UTC().Format("2006-01-02")) {
		logger.Debug().Msg("reminder lock held by another instance, skipping run")
		return
	}

	days := s.sysCfg.GetInt("reminder_days_before", 7)
	if days <= 0 {
		days = 7
	}

	due, err := s.store.DueSoon(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		logger.Error().Err(err).Msg("reminder run could not list due questionnaires")
		return
	}

	now := time.Now().UTC()
	sent := 0
	for i := range due {
		qn := &due[i]
		if qn.DueDate == nil {
			continue
		}
		if qn.Progress().CompletionPercentage >= 100 {
			continue
		}

		daysLeft := int(math.Ceil(qn.DueDate.Sub(now).Hours() / 24))
		if daysLeft < 0 {
			daysLeft = 0
		}

		if s.notifier != nil {
			s.notifier.SendDueReminder(qn, daysLeft)
		}
		sent++
	}

	if sent > 0 {
		LogInfo("scheduler", "reminders", fmt.Sprintf("sent %d due-date reminders", sent), nil, "", nil)
	}
	logger.Info().Int("due", len(due)).Int("sent", sent).Msg("reminder run completed")
}

// acquireLock inserts a scheduler lock row, or takes over an expired one.
// Returns false when another instance holds a live lock for the same run.
func (s *ReminderScheduler) acquireLock(name, key string) bool {
	if s.db == nil {
		return true
	}

	holder, _ := os.Hostname()
	now := time.Now().UTC()

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  holder,
		LockedAt:  now,
		ExpiresAt: now.Add(reminderLockTTL),
	}
	if err := s.db.Create(&lock).Error; err == nil {
		return true
	}

	result := s.db.Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ? AND expires_at < ?", name, key, now).
		Updates(map[string]interface{}{
			"locked_by":  holder,
			"locked_at":  now,
			"expires_at": now.Add(reminderLockTTL),
		})
	return result.Error == nil && result.RowsAffected > 0
}
