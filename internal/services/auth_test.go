package services

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/utils"
)

func newAuthService(t *testing.T) (*AuthService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.SystemConfig{}, &models.Country{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.JWT.ExpireHour = 2
	return NewAuthService(db, cfg), db
}

func seedLocalUser(t *testing.T, db *gorm.DB, username, password, role string) *models.User {
	t.Helper()
	hashed, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		Username: username,
		Password: hashed,
		FullName: "Test Analyst",
		Role:     role,
		AuthType: "local",
		IsActive: true,
		Country:  "NL",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestLogin_Local(t *testing.T) {
	svc, db := newAuthService(t)
	seedLocalUser(t, db, "avandermeer", "orange-tulip-9", models.RoleMarketTeam)

	result, err := svc.Login(&LoginRequest{Username: "avandermeer", Password: "orange-tulip-9"}, "10.1.2.3")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := utils.ParseToken(result.AccessToken)
	if err != nil {
		t.Fatalf("access token does not parse: %v", err)
	}
	if claims.Username != "avandermeer" || claims.Role != models.RoleMarketTeam {
		t.Errorf("claims = %s/%s", claims.Username, claims.Role)
	}

	if len(result.RefreshToken) != 64 {
		t.Errorf("refresh token length = %d, want 64 hex chars", len(result.RefreshToken))
	}
	if result.User == nil || result.User.LastLogin == nil {
		t.Error("login did not record last login time")
	}

	var record models.RefreshToken
	if err := db.Where("token_hash = ?", hashRefreshToken(result.RefreshToken)).First(&record).Error; err != nil {
		t.Fatalf("refresh token not stored: %v", err)
	}
	if record.CreatedByIP != "10.1.2.3" {
		t.Errorf("CreatedByIP = %q", record.CreatedByIP)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, db := newAuthService(t)
	seedLocalUser(t, db, "avandermeer", "orange-tulip-9", models.RoleMarketTeam)

	tests := []struct {
		name string
		req  LoginRequest
		want error
	}{
		{"wrong password", LoginRequest{Username: "avandermeer", Password: "wrong"}, ErrInvalidCredentials},
		{"unknown user", LoginRequest{Username: "nobody", Password: "orange-tulip-9"}, ErrInvalidCredentials},
	}
	for _, tt := range tests {
		if _, err := svc.Login(&tt.req, ""); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}

	if _, err := svc.Login(&LoginRequest{Username: "avandermeer", Password: "x", AuthType: "kerberos"}, ""); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("unsupported auth type err = %v", err)
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	svc, db := newAuthService(t)
	user := seedLocalUser(t, db, "jbakker", "winter-canal-7", models.RoleRiskAnalyst)
	db.Model(user).Update("is_active", false)

	if _, err := svc.Login(&LoginRequest{Username: "jbakker", Password: "winter-canal-7"}, ""); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("err = %v, want ErrUserDisabled", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, db := newAuthService(t)
	seedLocalUser(t, db, "avandermeer", "orange-tulip-9", models.RoleMarketTeam)

	login, err := svc.Login(&LoginRequest{Username: "avandermeer", Password: "orange-tulip-9"}, "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := svc.Refresh(login.RefreshToken, "10.9.8.7")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// The rotated-out token is revoked and linked to its replacement.
	var old models.RefreshToken
	if err := db.Where("token_hash = ?", hashRefreshToken(login.RefreshToken)).First(&old).Error; err != nil {
		t.Fatalf("old token row: %v", err)
	}
	if old.RevokedAt == nil || old.ReplacedByToken == nil {
		t.Errorf("old token not linked: revoked=%v replaced=%v", old.RevokedAt, old.ReplacedByToken)
	}

	// Reusing the old token must fail; the new one must still work.
	if _, err := svc.Refresh(login.RefreshToken, ""); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Errorf("reused token err = %v, want ErrRefreshTokenInvalid", err)
	}
	if _, err := svc.Refresh(refreshed.RefreshToken, ""); err != nil {
		t.Errorf("rotated token rejected: %v", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	svc, db := newAuthService(t)
	user := seedLocalUser(t, db, "avandermeer", "orange-tulip-9", models.RoleMarketTeam)

	token, hash, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken: %v", err)
	}
	db.Create(&models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(-time.Hour),
	})

	if _, err := svc.Refresh(token, ""); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Errorf("err = %v, want ErrRefreshTokenInvalid", err)
	}
}

func TestRefresh_DisabledUser(t *testing.T) {
	svc, db := newAuthService(t)
	user := seedLocalUser(t, db, "avandermeer", "orange-tulip-9", models.RoleMarketTeam)

	login, err := svc.Login(&LoginRequest{Username: "avandermeer", Password: "orange-tulip-9"}, "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	db.Model(user).Update("is_active", false)

	if _, err := svc.Refresh(login.RefreshToken, ""); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("err = %v, want ErrUserDisabled", err)
	}
}

func TestRevokeRefreshToken(t *testing.T) {
	svc, db := newAuthService(t)
	seedLocalUser(t, db, "avandermeer", "orange-tulip-9", models.RoleMarketTeam)

	login, err := svc.Login(&LoginRequest{Username: "avandermeer", Password: "orange-tulip-9"}, "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.RevokeRefreshToken(login.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Refresh(login.RefreshToken, ""); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Errorf("revoked token err = %v, want ErrRefreshTokenInvalid", err)
	}

	// Unknown and empty tokens are ignored.
	if err := svc.RevokeRefreshToken("deadbeef"); err != nil {
		t.Errorf("unknown token: %v", err)
	}
	if err := svc.RevokeRefreshToken(""); err != nil {
		t.Errorf("empty token: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, db := newAuthService(t)
	user := seedLocalUser(t, db, "jbakker", "winter-canal-7", models.RoleRiskAnalyst)

	wrong := &ChangePasswordRequest{OldPassword: "nope", NewPassword: "spring-bridge-3"}
	if err := svc.ChangePassword(user.ID, wrong); err == nil {
		t.Fatal("wrong old password accepted")
	}

	ok := &ChangePasswordRequest{OldPassword: "winter-canal-7", NewPassword: "spring-bridge-3"}
	if err := svc.ChangePassword(user.ID, ok); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Login(&LoginRequest{Username: "jbakker", Password: "winter-canal-7"}, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("old password still accepted")
	}
	if _, err := svc.Login(&LoginRequest{Username: "jbakker", Password: "spring-bridge-3"}, ""); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestCreateAdminIfNotExists(t *testing.T) {
	svc, db := newAuthService(t)

	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := svc.CreateAdminIfNotExists(); err != nil {
		t.Fatalf("second call: %v", err)
	}

	var admins int64
	db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins)
	if admins != 1 {
		t.Fatalf("admin count = %d, want 1", admins)
	}

	if _, err := svc.Login(&LoginRequest{Username: "admin", Password: "admin"}, ""); err != nil {
		t.Errorf("bootstrap admin cannot log in: %v", err)
	}
}

func TestLogin_TokenLifetimeFromConfig(t *testing.T) {
	svc, db := newAuthService(t)
	seedLocalUser(t, db, "avandermeer", "orange-tulip-9", models.RoleMarketTeam)

	if err := NewSystemConfigService(db).Set("auth_access_token_expire_hours", "48"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	result, err := svc.Login(&LoginRequest{Username: "avandermeer", Password: "orange-tulip-9"}, "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.AccessExpireAt.Before(time.Now().Add(47 * time.Hour)) {
		t.Errorf("AccessExpireAt = %v, want about 48h out", result.AccessExpireAt)
	}

	// A malformed override falls back to the static config.
	if err := NewSystemConfigService(db).Set("auth_access_token_expire_hours", "soon"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	result, err = svc.Login(&LoginRequest{Username: "avandermeer", Password: "orange-tulip-9"}, "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.AccessExpireAt.After(time.Now().Add(3 * time.Hour)) {
		t.Errorf("AccessExpireAt = %v, want about 2h out", result.AccessExpireAt)
	}
}
