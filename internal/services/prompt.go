package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
)

// ErrSystemPrompt is returned when a delete targets a built-in prompt.
var ErrSystemPrompt = errors.New("system prompts cannot be deleted")

// ErrInvalidTemplate wraps template validation failures so handlers can map
// them to a 400 instead of a 500.
var ErrInvalidTemplate = errors.New("invalid template")

// placeholderPattern matches {{NAME}} substitution tokens in template text.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// knownPlaceholders are the tokens the generation pipeline substitutes.
var knownPlaceholders = map[string]bool{
	"COUNTRY":         true,
	"REPORT_DATE":     true,
	"FOCUS_AREAS":     true,
	"REPORT_FINDINGS": true,
}

type PromptService struct {
	db *gorm.DB
}

func NewPromptService(db *gorm.DB) *PromptService {
	return &PromptService{db: db}
}

type PromptListParams struct {
	Page     int
	PageSize int
	Name     string
	IsSystem *bool
}

type PromptListResult struct {
	Items []models.PromptTemplate `json:"items"`
	Total int64                   `json:"total"`
}

// Placeholders returns the distinct substitution tokens found in template
// content, sorted for stable storage.
func Placeholders(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	sort.Strings(names)
	return names
}

// validateTemplate checks that every token is one the pipeline substitutes
// and that the findings placeholder is present. A template without
// {{REPORT_FINDINGS}} would ask the model for questions with no report to
// ground them on.
func validateTemplate(content string) ([]string, error) {
	names := Placeholders(content)

	hasFindings := false
	for _, name := range names {
		if !knownPlaceholders[name] {
			return nil, fmt.Errorf("%w: unknown placeholder {{%s}}", ErrInvalidTemplate, name)
		}
		if name == "REPORT_FINDINGS" {
			hasFindings = true
		}
	}
	if !hasFindings {
		return nil, fmt.Errorf("%w: missing {{REPORT_FINDINGS}} placeholder", ErrInvalidTemplate)
	}
	return names, nil
}

func encodeVariables(names []string) string {
	encoded, _ := json.Marshal(names)
	return string(encoded)
}

func (s *PromptService) List(params PromptListParams) (*PromptListResult, error) {
	query := s.db.Model(&models.PromptTemplate{})
	if params.Name != "" {
		query = query.Where("name LIKE ?", "%"+params.Name+"%")
	}
	if params.IsSystem != nil {
		query = query.Where("is_system = ?", *params.IsSystem)
	}

	result := &PromptListResult{}
	if err := query.Count(&result.Total).Error; err != nil {
		return nil, err
	}

	err := query.
		Order("is_system DESC, is_default DESC, id DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&result.Items).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PromptService) fetch(id uint) (*models.PromptTemplate, error) {
	var prompt models.PromptTemplate
	if err := s.db.First(&prompt, id).Error; err != nil {
		return nil, err
	}
	return &prompt, nil
}

func (s *PromptService) GetByID(id uint) (*models.PromptTemplate, error) {
	return s.fetch(id)
}

func (s *PromptService) GetDefault() (*models.PromptTemplate, error) {
	var prompt models.PromptTemplate
	if err := s.db.Where("is_default = ?", true).First(&prompt).Error; err != nil {
		return nil, err
	}
	return &prompt, nil
}

// Create stores a user-authored template. The content is validated and its
// placeholder list recorded.
func (s *PromptService) Create(prompt *models.PromptTemplate) error {
	names, err := validateTemplate(prompt.Content)
	if err != nil {
		return err
	}

	prompt.IsSystem = false
	prompt.Variables = encodeVariables(names)
	return s.db.Create(prompt).Error
}

// Update applies a partial update. New content is validated like on create;
// the built-in flag is fixed at creation time.
func (s *PromptService) Update(id uint, updates map[string]interface{}) error {
	if _, err := s.fetch(id); err != nil {
		return err
	}

	delete(updates, "is_system")

	if content, ok := updates["content"].(string); ok {
		names, err := validateTemplate(content)
		if err != nil {
			return err
		}
		updates["variables"] = encodeVariables(names)
	}

	return s.db.Model(&models.PromptTemplate{}).Where("id = ?", id).Updates(updates).Error
}

func (s *PromptService) Delete(id uint) error {
	prompt, err := s.fetch(id)
	if err != nil {
		return err
	}
	if prompt.IsSystem {
		return ErrSystemPrompt
	}
	return s.db.Delete(&models.PromptTemplate{}, id).Error
}

// SetDefault moves the default flag to the given template. Runs in a
// transaction so a failure cannot leave the system without a default.
func (s *PromptService) SetDefault(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&models.PromptTemplate{}, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PromptTemplate{}).Where("is_default = ?", true).Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.PromptTemplate{}).Where("id = ?", id).Update("is_default", true).Error
	})
}

// GetAllActive lists every template for the selection dropdown, system and
// default entries first.
func (s *PromptService) GetAllActive() ([]models.PromptTemplate, error) {
	var prompts []models.PromptTemplate
	err := s.db.
		Order("is_system DESC, is_default DESC, name ASC").
		Find(&prompts).Error
	if err != nil {
		return nil, err
	}
	return prompts, nil
}
