package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// NotificationService pushes questionnaire events to the configured webhooks:
// attention alerts right after generation and due-date reminders from the
// scheduler. Delivery is best effort; failures are logged, never propagated
// into the request path.
type NotificationService struct {
	webhooks []config.WebhookConfig
	client   *http.Client
}

func NewNotificationService(webhooks []config.WebhookConfig) *NotificationService {
	return &NotificationService{
		webhooks: webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendAttentionAlert fires when a generated questionnaire carries critical
// findings.
func (s *NotificationService) SendAttentionAlert(qn *models.Questionnaire, summary models.Summary) {
	title := fmt.Sprintf("DQ alert: %s %s", qn.Country, qn.ReportDate)
	msg := buildAttentionMessage(qn, summary)
	fields := map[string]interface{}{
		"kind":              "attention_alert",
		"questionnaire_id":  qn.ID,
		"country":           qn.Country,
		"report_date":       qn.ReportDate,
		"entity":            qn.Entity,
		"total_questions":   summary.TotalQuestions,
		"critical_priority": summary.CriticalPriority,
		"high_priority":     summary.HighPriority,
	}
	s.dispatch(title, msg, fields)
}

// SendDueReminder fires for questionnaires approaching their deadline with
// unanswered questions.
func (s *NotificationService) SendDueReminder(qn *models.Questionnaire, daysLeft int) {
	progress := qn.Progress()
	title := fmt.Sprintf("DQ reminder: %s %s due in %d days", qn.Country, qn.ReportDate, daysLeft)
	msg := fmt.Sprintf(`**DQ Questionnaire Reminder**

**Market**: %s (%s)
**Report date**: %s
**Progress**: %d of %d questions completed (%d%%)
**Due in**: %d days

Open questions need answers before the deadline.`,
		qn.Country, qn.Entity, qn.ReportDate,
		progress.CompletedResponses, progress.TotalQuestions, progress.CompletionPercentage,
		daysLeft)
	fields := map[string]interface{}{
		"kind":                  "due_reminder",
		"questionnaire_id":      qn.ID,
		"country":               qn.Country,
		"report_date":           qn.ReportDate,
		"days_left":             daysLeft,
		"completion_percentage": progress.CompletionPercentage,
	}
	s.dispatch(title, msg, fields)
}

// SendTest delivers a probe message to one named webhook so admins can verify
// wiring.
func (s *NotificationService) SendTest(name string) error {
	for _, hook := range s.webhooks {
		if hook.Name != name {
			continue
		}
		if !hook.Enabled || hook.URL == "" {
			return fmt.Errorf("webhook %s is disabled", name)
		}
		return s.deliver(hook, "DQ agent test", "Test notification from the DQ agent.", map[string]interface{}{"kind": "test"})
	}
	return fmt.Errorf("webhook %s not configured", name)
}

func buildAttentionMessage(qn *models.Questionnaire, summary models.Summary) string {
	msg := fmt.Sprintf(`**DQ Questionnaire Alert**

**Market**: %s (%s)
**Report date**: %s
**Questions**: %d (%d critical, %d high)
**Categories**: %s

Critical findings need immediate attention.`,
		qn.Country, qn.Entity, qn.ReportDate,
		summary.TotalQuestions, summary.CriticalPriority, summary.HighPriority,
		strings.Join(summary.Categories, ", "))

	if qn.DueDate != nil {
		msg += fmt.Sprintf("\n**Due**: %s", qn.DueDate.Format("2006-01-02"))
	}
	return msg
}

func (s *NotificationService) dispatch(title, msg string, fields map[string]interface{}) {
	for _, hook := range s.webhooks {
		if !hook.Enabled || hook.URL == "" {
			continue
		}
		if err := s.deliver(hook, title, msg, fields); err != nil {
			logger.Error().Err(err).Str("webhook", hook.Name).Msg("notification delivery failed")
			LogError("notification", "send", fmt.Sprintf("delivery to %s failed: %v", hook.Name, err), nil, "", nil)
			continue
		}
		logger.Info().Str("webhook", hook.Name).Str("platform", hook.Platform).Msg("notification sent")
	}
}

func (s *NotificationService) deliver(hook config.WebhookConfig, title, msg string, fields map[string]interface{}) error {
	switch hook.Platform {
	case "teams":
		return s.sendTeams(hook.URL, title, msg)
	case "slack":
		return s.sendSlack(hook.URL, title, msg)
	default:
		return s.sendGeneric(hook.URL, title, msg, fields)
	}
}

func (s *NotificationService) sendTeams(webhookURL, title, msg string) error {
	const maxLen = 4000

	parts := splitMessage(msg, maxLen)
	for i, part := range parts {
		cardTitle := title
		if len(parts) > 1 {
			cardTitle = fmt.Sprintf("%s [%d/%d]", title, i+1, len(parts))
		}
		payload := map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"summary":    cardTitle,
			"title":      cardTitle,
			"text":       part,
			"themeColor": "D7000F",
		}
		if err := s.postJSON(webhookURL, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) sendSlack(webhookURL, title, msg string) error {
	const maxLen = 3000

	parts := splitMessage(msg, maxLen)
	for i, part := range parts {
		header := fmt.Sprintf("*%s*", title)
		if len(parts) > 1 {
			header = fmt.Sprintf("*%s [%d/%d]*", title, i+1, len(parts))
		}
		payload := map[string]interface{}{
			"text": header,
			"blocks": []map[string]interface{}{
				{
					"type": "section",
					"text": map[string]string{
						"type": "mrkdwn",
						"text": header,
					},
				},
				{
					"type": "section",
					"text": map[string]string{
						"type": "mrkdwn",
						"text": part,
					},
				},
			},
		}
		if err := s.postJSON(webhookURL, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) sendGeneric(webhookURL, title, msg string, fields map[string]interface{}) error {
	payload := map[string]interface{}{
		"title":   title,
		"message": msg,
	}
	for k, v := range fields {
		payload[k] = v
	}
	return s.postJSON(webhookURL, payload)
}

// splitMessage splits a long message into chunks, trying to break at
// newlines.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var parts []string
	remaining := msg

	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			parts = append(parts, remaining)
			break
		}

		chunk := remaining[:maxLen]
		breakPoint := maxLen

		for i := len(chunk) - 1; i > maxLen/2; i-- {
			if chunk[i] == '\n' {
				breakPoint = i + 1
				break
			}
		}

		parts = append(parts, remaining[:breakPoint])
		remaining = remaining[breakPoint:]
	}

	return parts
}

func (s *NotificationService) postJSON(webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
