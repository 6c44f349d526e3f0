package services

import (
	"strings"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
)

// CountryService manages the reporting-market registry.
type CountryService struct {
	db *gorm.DB
}

func NewCountryService(db *gorm.DB) *CountryService {
	return &CountryService{db: db}
}

// List returns markets ordered by code. Inactive markets are included only
// when requested.
func (s *CountryService) List(includeInactive bool) ([]models.Country, error) {
	var countries []models.Country
	query := s.db.Order("code ASC")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&countries).Error; err != nil {
		return nil, &PersistenceFailure{Op: "country_list", Err: err}
	}
	return countries, nil
}

func (s *CountryService) Get(code string) (*models.Country, error) {
	var country models.Country
	err := s.db.Where("code = ?", strings.ToUpper(code)).First(&country).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, &PersistenceFailure{Op: "country_get", Key: code, Err: err}
	}
	return &country, nil
}

// Valid reports whether code names an active market.
func (s *CountryService) Valid(code string) bool {
	country, err := s.Get(code)
	return err == nil && country.Active
}

// Upsert creates or updates a market keyed by its code.
func (s *CountryService) Upsert(c *models.Country) error {
	c.Code = strings.ToUpper(c.Code)

	var existing models.Country
	err := s.db.Where("code = ?", c.Code).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if err := s.db.Create(c).Error; err != nil {
			return &PersistenceFailure{Op: "country_create", Key: c.Code, Err: err}
		}
		return nil
	}
	if err != nil {
		return &PersistenceFailure{Op: "country_upsert", Key: c.Code, Err: err}
	}

	c.ID = existing.ID
	if err := s.db.Model(&existing).Updates(map[string]interface{}{
		"name":        c.Name,
		"entity_id":   c.EntityID,
		"entity_name": c.EntityName,
		"region":      c.Region,
		"active":      c.Active,
	}).Error; err != nil {
		return &PersistenceFailure{Op: "country_upsert", Key: c.Code, Err: err}
	}
	return nil
}

// SetActive toggles a market without touching its descriptive fields.
func (s *CountryService) SetActive(code string, active bool) error {
	res := s.db.Model(&models.Country{}).
		Where("code = ?", strings.ToUpper(code)).
		Update("active", active)
	if res.Error != nil {
		return &PersistenceFailure{Op: "country_set_active", Key: code, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
