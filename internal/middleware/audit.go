package middleware

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/middleware/requestid"
)

const (
	auditResourceIDKey = "audit.resource_id"
	auditDetailsKey    = "audit.details"
)

// AuditRecorder accepts audit rows for delivery to the support store.
type AuditRecorder interface {
	Record(entry models.AuditLog)
}

// SetAuditResource attaches the affected row and extra details to the audit
// entry written for this request.
func SetAuditResource(c *gin.Context, id int64, details map[string]interface{}) {
	c.Set(auditResourceIDKey, strconv.FormatInt(id, 10))
	if details != nil {
		c.Set(auditDetailsKey, details)
	}
}

// Audit records an audit row after a successful request. The row is handed
// to recorder once the handler returns, so it describes a committed change.
func Audit(recorder AuditRecorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		payload := map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		}
		if extra, ok := c.Get(auditDetailsKey); ok {
			if m, ok := extra.(map[string]interface{}); ok {
				for k, v := range m {
					payload[k] = v
				}
			}
		}
		details, err := json.Marshal(payload)
		if err != nil {
			_ = c.Error(fmt.Errorf("encode audit details: %w", err))
			details = nil
		}

		entry := models.AuditLog{
			Action:    action,
			Resource:  resource,
			Details:   details,
			IPAddress: c.ClientIP(),
			RequestID: requestid.Value(c),
			CreatedAt: start,
		}
		if claims := Claims(c); claims != nil {
			ref := claims.UserID
			entry.UserID = &ref
		}
		if id := c.GetString(auditResourceIDKey); id != "" {
			entry.ResourceID = &id
		}
		recorder.Record(entry)
	}
}
