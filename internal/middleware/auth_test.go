package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("middleware-test-secret")
}

// protectedRouter guards a questionnaire route with AuthRequired and echoes
// the claims the middleware stored.
func protectedRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthRequired())
	r.GET("/api/questionnaire/NL", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  GetUserID(c),
			"username": GetUsername(c),
			"role":     GetRole(c),
		})
	})
	return r
}

func getWithAuth(r *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/questionnaire/NL", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired_RejectsMissingOrMalformedHeader(t *testing.T) {
	r := protectedRouter()

	headers := []string{
		"",
		"sometoken",
		"Basic dXNlcjpwYXNz",
		"Bearer",
		"Bearer ",
	}
	for _, h := range headers {
		if w := getWithAuth(r, h); w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want %d", h, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestAuthRequired_RejectsInvalidToken(t *testing.T) {
	w := getWithAuth(protectedRouter(), "Bearer not.a.token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthRequired_RejectsExpiredToken(t *testing.T) {
	token, err := utils.GenerateToken(3, "avandermeer", models.RoleMarketTeam, -1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	w := getWithAuth(protectedRouter(), "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthRequired_PropagatesClaims(t *testing.T) {
	token, err := utils.GenerateToken(7, "avandermeer", models.RoleMarketTeam, 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	w := getWithAuth(protectedRouter(), "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		UserID   uint   `json:"user_id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.UserID != 7 || body.Username != "avandermeer" || body.Role != models.RoleMarketTeam {
		t.Errorf("claims = %+v, want user 7 / avandermeer / %s", body, models.RoleMarketTeam)
	}
}

func TestAuthRequired_SchemeIsCaseInsensitive(t *testing.T) {
	token, err := utils.GenerateToken(7, "avandermeer", models.RoleMarketTeam, 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if w := getWithAuth(protectedRouter(), "bearer "+token); w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// roleRouter injects a role claim, then applies the gate under test.
func roleRouter(gate gin.HandlerFunc, role string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if role != "" {
			c.Set(ContextRole, role)
		}
	})
	r.Use(gate)
	r.POST("/gated", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRoleGates(t *testing.T) {
	tests := []struct {
		name string
		gate gin.HandlerFunc
		role string
		want int
	}{
		{"admin gate rejects anonymous", AdminRequired(), "", http.StatusForbidden},
		{"admin gate rejects market team", AdminRequired(), models.RoleMarketTeam, http.StatusForbidden},
		{"admin gate rejects risk analyst", AdminRequired(), models.RoleRiskAnalyst, http.StatusForbidden},
		{"admin gate admits admin", AdminRequired(), models.RoleAdmin, http.StatusOK},
		{"approver gate rejects anonymous", ApproverRequired(), "", http.StatusForbidden},
		{"approver gate rejects market team", ApproverRequired(), models.RoleMarketTeam, http.StatusForbidden},
		{"approver gate admits risk analyst", ApproverRequired(), models.RoleRiskAnalyst, http.StatusOK},
		{"approver gate admits admin", ApproverRequired(), models.RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		r := roleRouter(tt.gate, tt.role)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/gated", nil)
		r.ServeHTTP(w, req)

		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.want)
		}
	}
}

func TestContextGetters_DefaultsWhenUnset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if got := GetUserID(c); got != 0 {
		t.Errorf("GetUserID = %d, want 0", got)
	}
	if got := GetUsername(c); got != "" {
		t.Errorf("GetUsername = %q, want empty", got)
	}
	if got := GetRole(c); got != "" {
		t.Errorf("GetRole = %q, want empty", got)
	}
}

func TestContextGetters_ReturnStoredClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ContextUserID, uint(12))
	c.Set(ContextUsername, "jbakker")
	c.Set(ContextRole, models.RoleRiskAnalyst)

	if got := GetUserID(c); got != 12 {
		t.Errorf("GetUserID = %d, want 12", got)
	}
	if got := GetUsername(c); got != "jbakker" {
		t.Errorf("GetUsername = %q, want jbakker", got)
	}
	if got := GetRole(c); got != models.RoleRiskAnalyst {
		t.Errorf("GetRole = %q, want %q", got, models.RoleRiskAnalyst)
	}
}
