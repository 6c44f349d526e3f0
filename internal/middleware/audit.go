package middleware

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aravindsuri/dqagent/internal/services"
)

const auditBodyLimit = 2000

// secretFields matches JSON string values for credential-like keys so the
// stored body snippet never contains a usable secret.
var secretFields = regexp.MustCompile(`(?i)("(?:password|api_key|apikey|secret|token|access_token)"\s*:\s*)"[^"]*"`)

var methodActions = map[string]string{
	"POST":   "Create",
	"PUT":    "Update",
	"DELETE": "Delete",
}

// AuditLog records admin write operations to system_logs. Reads pass through
// unrecorded.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		action, audited := methodActions[c.Request.Method]
		if !audited {
			c.Next()
			return
		}

		body := snapshotBody(c)
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		username := GetUsername(c)

		var uid *uint
		if id := GetUserID(c); id > 0 {
			uid = &id
		}

		outcome := "failed"
		if status >= 200 && status < 300 {
			outcome = "succeeded"
		}
		message := fmt.Sprintf("audit: %s %s %s %s (%d)", username, c.Request.Method, path, outcome, status)

		services.LogInfo(routeModule(c.FullPath()), action, message, uid, c.ClientIP(), map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"body":       body,
			"user_agent": c.Request.UserAgent(),
			"audit":      true,
		})
	}
}

// snapshotBody reads the request body, restores it for the handler, and
// returns a redacted, size-capped copy.
func snapshotBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	raw, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	snippet := secretFields.ReplaceAllString(string(raw), `$1"***"`)
	if len(snippet) > auditBodyLimit {
		snippet = snippet[:auditBodyLimit] + "...[truncated]"
	}
	return snippet
}

// routeModule derives a display module name from a Gin route pattern, taking
// the first path segment under /api. "/api/system-config/:key" becomes
// "System Config".
func routeModule(fullPath string) string {
	segment, _, _ := strings.Cut(strings.TrimPrefix(fullPath, "/api/"), "/")
	if segment == "" {
		return "Unknown"
	}

	words := strings.FieldsFunc(segment, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
