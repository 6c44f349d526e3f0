package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/utils"
)

var (
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUserDisabled        = errors.New("account is disabled")
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid or expired")
)

type AuthService struct {
	db          *gorm.DB
	ldapService *LDAPService
	countries   *CountryService
	jwtConfig   *config.JWTConfig
	configSvc   *SystemConfigService
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	return &AuthService{
		db:          db,
		ldapService: NewLDAPService(db, &cfg.LDAP),
		countries:   NewCountryService(db),
		jwtConfig:   &cfg.JWT,
		configSvc:   NewSystemConfigService(db),
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

type RefreshResult struct {
	AccessToken     string    `json:"access_token"`
	AccessExpireAt  time.Time `json:"access_expire_at"`
	RefreshToken    string    `json:"refresh_token"`
	RefreshExpireAt time.Time `json:"refresh_expire_at"`
}

type LoginResult struct {
	RefreshResult
	User *models.User `json:"user"`
}

// Login authenticates a user and issues an access token plus a rotating
// refresh token.
func (s *AuthService) Login(req *LoginRequest, clientIP string) (*LoginResult, error) {
	var user *models.User
	var err error

	switch req.AuthType {
	case "", "local":
		user, err = s.localAuth(req.Username, req.Password)
	case "ldap":
		user, err = s.ldapAuth(req.Username, req.Password)
	default:
		return nil, fmt.Errorf("unsupported auth type %q", req.AuthType)
	}
	if err != nil {
		return nil, err
	}

	pair, _, err := s.issueTokens(s.db, user, clientIP)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLogin = &now
	s.db.Save(user)

	return &LoginResult{RefreshResult: *pair, User: user}, nil
}

// Refresh exchanges a live refresh token for a new pair. The old token is
// revoked in the same transaction and linked to its replacement, so reuse of
// a rotated token is detectable.
func (s *AuthService) Refresh(refreshToken, clientIP string) (*RefreshResult, error) {
	stored, err := s.liveRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.activeUser(stored.UserID)
	if err != nil {
		return nil, err
	}

	var pair *RefreshResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result, record, err := s.issueTokens(tx, user, clientIP)
		if err != nil {
			return err
		}
		pair = result
		return tx.Model(stored).Updates(map[string]interface{}{
			"revoked_at":           time.Now(),
			"replaced_by_token_id": record.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// RevokeRefreshToken marks the token revoked. Unknown tokens are ignored so
// logout is idempotent.
func (s *AuthService) RevokeRefreshToken(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", time.Now()).Error
}

// issueTokens signs an access token and persists a refresh token record on
// the given handle, which may be a transaction.
func (s *AuthService) issueTokens(tx *gorm.DB, user *models.User, clientIP string) (*RefreshResult, *models.RefreshToken, error) {
	accessHours := s.configHours("auth_access_token_expire_hours", s.jwtConfig.ExpireHour)

	access, err := utils.GenerateToken(user.ID, user.Username, user.Role, accessHours)
	if err != nil {
		return nil, nil, err
	}

	refresh, hash, err := newRefreshToken()
	if err != nil {
		return nil, nil, err
	}

	record := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   hash,
		ExpiresAt:   time.Now().Add(time.Duration(s.configHours("auth_refresh_token_expire_hours", 720)) * time.Hour),
		CreatedByIP: clientIP,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, nil, err
	}

	return &RefreshResult{
		AccessToken:     access,
		AccessExpireAt:  time.Now().Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    refresh,
		RefreshExpireAt: record.ExpiresAt,
	}, &record, nil
}

// liveRefreshToken resolves a presented token to a stored record that is
// neither revoked nor expired.
func (s *AuthService) liveRefreshToken(token string) (*models.RefreshToken, error) {
	if token == "" {
		return nil, ErrRefreshTokenInvalid
	}

	var stored models.RefreshToken
	err := s.db.Where("token_hash = ?", hashRefreshToken(token)).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if stored.RevokedAt != nil || time.Now().After(stored.ExpiresAt) {
		return nil, ErrRefreshTokenInvalid
	}
	return &stored, nil
}

func (s *AuthService) activeUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	return &user, nil
}

// configHours reads an hour count from system config, falling back when the
// stored value is absent or not a positive integer.
func (s *AuthService) configHours(key string, fallback int) int {
	raw := s.configSvc.GetWithDefault(key, strconv.Itoa(fallback))
	if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
		return hours
	}
	return fallback
}

func newRefreshToken() (token, tokenHash string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, hashRefreshToken(token), nil
}

// hashRefreshToken digests a token for storage; only the digest ever touches
// the database.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) localAuth(username, password string) (*models.User, error) {
	var user models.User
	err := s.db.Where("username = ? AND auth_type = ?", username, "local").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *AuthService) ldapAuth(username, password string) (*models.User, error) {
	ldapUser, err := s.ldapService.Authenticate(username, password)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.db.Where("username = ? AND auth_type = ?", ldapUser.Username, "ldap").First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		// First directory login creates a market-team account. The country
		// attribute is honored only when it names an active market.
		user = models.User{
			Username: ldapUser.Username,
			Email:    ldapUser.Email,
			FullName: ldapUser.FullName,
			Role:     models.RoleMarketTeam,
			AuthType: "ldap",
			IsActive: true,
		}
		if ldapUser.Country != "" && s.countries.Valid(ldapUser.Country) {
			user.Country = ldapUser.Country
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	// Refresh directory-owned fields; an admin-assigned market is kept.
	user.Email = ldapUser.Email
	user.FullName = ldapUser.FullName
	if user.Country == "" && ldapUser.Country != "" && s.countries.Valid(ldapUser.Country) {
		user.Country = ldapUser.Country
	}
	s.db.Save(&user)

	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAdminIfNotExists seeds the bootstrap admin account on first start.
func (s *AuthService) CreateAdminIfNotExists() error {
	var count int64
	s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword("admin")
	if err != nil {
		return err
	}
	return s.db.Create(&models.User{
		Username: "admin",
		Password: hashed,
		FullName: "Administrator",
		Role:     models.RoleAdmin,
		AuthType: "local",
		IsActive: true,
	}).Error
}

func (s *AuthService) IsLDAPEnabled() bool {
	return s.ldapService.IsEnabled()
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func (s *AuthService) ChangePassword(userID uint, req *ChangePasswordRequest) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return errors.New("user not found")
	}

	if user.AuthType != "local" {
		return errors.New("directory accounts change passwords in the directory")
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return errors.New("old password is incorrect")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	user.Password = hashed
	return s.db.Save(user).Error
}
