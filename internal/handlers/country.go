package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

type CountryHandler struct {
	countries *services.CountryService
}

func NewCountryHandler(db *gorm.DB) *CountryHandler {
	return &CountryHandler{
		countries: services.NewCountryService(db),
	}
}

// List returns supported markets, active only unless ?include_inactive=true.
// GET /api/countries
func (h *CountryHandler) List(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"
	countries, err := h.countries.List(includeInactive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, countries)
}

// Get returns one market by code.
// GET /api/countries/:code
func (h *CountryHandler) Get(c *gin.Context) {
	country, err := h.countries.Get(c.Param("code"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "country not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, country)
}

type upsertCountryRequest struct {
	Code       string `json:"code" binding:"required"`
	Name       string `json:"name" binding:"required"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Region     string `json:"region"`
	Active     *bool  `json:"active"`
}

// Upsert creates or updates a market registration.
// POST /api/countries
func (h *CountryHandler) Upsert(c *gin.Context) {
	var req upsertCountryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	country := &models.Country{
		Code:       req.Code,
		Name:       req.Name,
		EntityID:   req.EntityID,
		EntityName: req.EntityName,
		Region:     req.Region,
		Active:     true,
	}
	if req.Active != nil {
		country.Active = *req.Active
	}

	if err := h.countries.Upsert(country); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, country)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive toggles whether a market appears in the selector.
// PUT /api/countries/:code/active
func (h *CountryHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.countries.SetActive(c.Param("code"), *req.Active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "country not found")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"code": c.Param("code"), "active": *req.Active})
}
