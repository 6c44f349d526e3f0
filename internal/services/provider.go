package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
)

// ErrUnknownProvider rejects provider names the generation chain cannot
// dispatch. Unknown names would otherwise fall through to the OpenAI client
// silently, so typos are caught at write time instead.
var ErrUnknownProvider = errors.New("unknown provider type")

var knownProviders = map[string]struct{}{
	"openai":    {},
	"azure":     {},
	"anthropic": {},
	"ollama":    {},
	"gemini":    {},
}

// KnownProvider reports whether the generation chain has a client for name.
func KnownProvider(name string) bool {
	_, ok := knownProviders[name]
	return ok
}

// AIProviderService manages the provider table the generation chain reads.
type AIProviderService struct {
	db *gorm.DB
}

func NewAIProviderService(db *gorm.DB) *AIProviderService {
	return &AIProviderService{db: db}
}

type ProviderListRequest struct {
	Page     int    `form:"page" binding:"min=1"`
	PageSize int    `form:"page_size" binding:"min=1,max=100"`
	Name     string `form:"name"`
	Provider string `form:"provider"`
	IsActive *bool  `form:"is_active"`
}

func (req *ProviderListRequest) normalize() {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 10
	}
}

type ProviderListResponse struct {
	Total    int64                     `json:"total"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
	Items    []models.AIProviderConfig `json:"items"`
}

// CreateProviderRequest has no active flag: new providers join the chain
// active, and deactivation is an update.
type CreateProviderRequest struct {
	Name        string  `json:"name" binding:"required"`
	Provider    string  `json:"provider"`
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model" binding:"required"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Priority    int     `json:"priority"`
}

type UpdateProviderRequest struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider"`
	BaseURL     string   `json:"base_url"`
	APIKey      string   `json:"api_key"`
	Model       string   `json:"model"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	Priority    *int     `json:"priority"`
	IsActive    *bool    `json:"is_active"`
}

// patch maps the set fields to their columns. Pointer fields distinguish
// "leave alone" from "set to zero".
func (req *UpdateProviderRequest) patch() map[string]interface{} {
	updates := make(map[string]interface{})
	for column, value := range map[string]string{
		"name":     req.Name,
		"provider": req.Provider,
		"base_url": req.BaseURL,
		"api_key":  req.APIKey,
		"model":    req.Model,
	} {
		if value != "" {
			updates[column] = value
		}
	}
	if req.MaxTokens != nil {
		updates["max_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		updates["temperature"] = *req.Temperature
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	return updates
}

func providerFilters(req *ProviderListRequest) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if req.Name != "" {
			db = db.Where("name LIKE ? OR model LIKE ?", "%"+req.Name+"%", "%"+req.Name+"%")
		}
		if req.Provider != "" {
			db = db.Where("provider = ?", req.Provider)
		}
		if req.IsActive != nil {
			db = db.Where("is_active = ?", *req.IsActive)
		}
		return db
	}
}

// maskKeys replaces stored keys with their display form. The raw key never
// leaves the service.
func maskKeys(providers []models.AIProviderConfig) {
	for i := range providers {
		providers[i].APIKeyMask = providers[i].MaskAPIKey()
	}
}

// List returns providers in chain order, filtered and paginated.
func (s *AIProviderService) List(req *ProviderListRequest) (*ProviderListResponse, error) {
	req.normalize()

	query := s.db.Model(&models.AIProviderConfig{}).Scopes(providerFilters(req))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var providers []models.AIProviderConfig
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).
		Order("priority ASC, id ASC").
		Find(&providers).Error; err != nil {
		return nil, err
	}
	maskKeys(providers)

	return &ProviderListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    providers,
	}, nil
}

// GetByID returns one provider config.
func (s *AIProviderService) GetByID(id uint) (*models.AIProviderConfig, error) {
	var provider models.AIProviderConfig
	if err := s.db.First(&provider, id).Error; err != nil {
		return nil, err
	}
	provider.APIKeyMask = provider.MaskAPIKey()
	return &provider, nil
}

// fillProviderDefaults applies the values the generation chain assumes when a
// field is unset.
func fillProviderDefaults(p *models.AIProviderConfig) {
	if p.Provider == "" {
		p.Provider = "openai"
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 4096
	}
	if p.Temperature == 0 {
		p.Temperature = 0.3
	}
	if p.Priority == 0 {
		p.Priority = 100
	}
}

// Create stores a new provider config.
func (s *AIProviderService) Create(req *CreateProviderRequest) (*models.AIProviderConfig, error) {
	provider := models.AIProviderConfig{
		Name:        req.Name,
		Provider:    req.Provider,
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Priority:    req.Priority,
		IsActive:    true,
	}
	fillProviderDefaults(&provider)

	if !KnownProvider(provider.Provider) {
		return nil, ErrUnknownProvider
	}

	if err := s.db.Create(&provider).Error; err != nil {
		return nil, err
	}

	provider.APIKeyMask = provider.MaskAPIKey()
	return &provider, nil
}

// Update applies a partial update to a provider config.
func (s *AIProviderService) Update(id uint, req *UpdateProviderRequest) (*models.AIProviderConfig, error) {
	if req.Provider != "" && !KnownProvider(req.Provider) {
		return nil, ErrUnknownProvider
	}

	var provider models.AIProviderConfig
	if err := s.db.First(&provider, id).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&provider).Updates(req.patch()).Error; err != nil {
		return nil, err
	}

	if err := s.db.First(&provider, id).Error; err != nil {
		return nil, err
	}
	provider.APIKeyMask = provider.MaskAPIKey()
	return &provider, nil
}

// Delete soft-deletes a provider config.
func (s *AIProviderService) Delete(id uint) error {
	result := s.db.Delete(&models.AIProviderConfig{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SeedFromConfig copies file-configured providers into the table. Runs only
// when the table is empty; after that the table is authoritative.
func (s *AIProviderService) SeedFromConfig(providers []config.ProviderConfig) error {
	var count int64
	if err := s.db.Model(&models.AIProviderConfig{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var rows []models.AIProviderConfig
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		row := models.AIProviderConfig{
			Name:     p.Provider,
			Provider: p.Provider,
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Model:    p.Model,
			Priority: p.Priority,
			IsActive: true,
		}
		fillProviderDefaults(&row)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.Create(&rows).Error
}

// GetActive returns active providers in the order the chain tries them.
func (s *AIProviderService) GetActive() ([]models.AIProviderConfig, error) {
	var providers []models.AIProviderConfig
	if err := s.db.Where("is_active = ?", true).
		Order("priority ASC, id ASC").
		Find(&providers).Error; err != nil {
		return nil, err
	}
	maskKeys(providers)
	return providers, nil
}
