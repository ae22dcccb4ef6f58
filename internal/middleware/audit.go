package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/services"
)

const auditBodyLimit = 2000

var auditActions = map[string]string{
	http.MethodPost:   "Create",
	http.MethodPut:    "Update",
	http.MethodDelete: "Delete",
}

// AuditLog records write operations (POST/PUT/DELETE) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if _, ok := auditActions[method]; !ok {
			c.Next()
			return
		}

		body := captureBody(c)
		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)

		var uid *uint
		if userID := GetUserID(c); userID > 0 {
			uid = &userID
		}

		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   body,
			"audit":  true,
		}
		if familyID := c.Param("id"); familyID != "" {
			extra["family_id"] = familyID
		}
		if memberID := c.Param("memberID"); memberID != "" {
			extra["member_id"] = memberID
		}

		log := services.LogInfo
		if status >= http.StatusInternalServerError {
			log = services.LogError
		}
		log(module, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
	}
}

// captureBody reads the request body for the audit record and puts it back
// for the handler. Multipart bodies (photos) are not recorded.
func captureBody(c *gin.Context) string {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return "[multipart]"
	}
	if c.Request.Body == nil {
		return ""
	}
	raw, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	body := maskSensitiveFields(string(raw))
	if len(body) > auditBodyLimit {
		body = body[:auditBodyLimit] + "...[truncated]"
	}
	return body
}

// parseRouteInfo extracts module and action from a Gin route pattern. The
// module is the segment after the last path parameter, so
// "/api/families/:id/members/:memberID" + "DELETE" gives "members", "Delete".
func parseRouteInfo(fullPath, method string) (module, action string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/"), "/")
	module = parts[0]
	for i := 0; i+1 < len(parts); i++ {
		if strings.HasPrefix(parts[i], ":") && !strings.HasPrefix(parts[i+1], ":") {
			module = parts[i+1]
		}
	}
	if module == "" {
		module = "unknown"
	}

	action, ok := auditActions[method]
	if !ok {
		action = method
	}
	return module, action
}

func formatAuditMessage(username, method, path string, status int) string {
	outcome := "Failed"
	if status >= 200 && status < 300 {
		outcome = "OK"
	}
	return fmt.Sprintf("[Audit] %s %s %s -> %s", username, method, path, outcome)
}

// maskSensitiveFields replaces the values of password and token fields at any
// depth of a JSON body. Bodies that are not JSON are returned unchanged.
func maskSensitiveFields(body string) string {
	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return body
	}
	if !maskValue(doc) {
		return body
	}
	masked, err := json.Marshal(doc)
	if err != nil {
		return body
	}
	return string(masked)
}

func maskValue(v interface{}) bool {
	changed := false
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			if isSensitiveKey(k) {
				t[k] = "***"
				changed = true
				continue
			}
			if maskValue(inner) {
				changed = true
			}
		}
	case []interface{}:
		for _, inner := range t {
			if maskValue(inner) {
				changed = true
			}
		}
	}
	return changed
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "api_key", "apikey"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
