package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-intake-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// ResponseMeta prepares per-request metadata that handlers attach to the response envelope.
func ResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := Meta(c)
		if id := requestid.Value(c); id != "" {
			meta["request_id"] = id
		}
		c.Set("request_started_at", time.Now())
		c.Next()
	}
}

// Meta returns the metadata map for the request, creating it when missing.
func Meta(c *gin.Context) map[string]interface{} {
	if value, exists := c.Get(responseMetaKey); exists {
		if typed, ok := value.(map[string]interface{}); ok {
			return typed
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}

// MarkCacheHit records whether the response was served from cache and stamps the elapsed time.
func MarkCacheHit(c *gin.Context, hit bool) map[string]interface{} {
	meta := Meta(c)
	meta["cache_hit"] = hit
	if started, ok := c.Get("request_started_at"); ok {
		if at, ok := started.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(at).Milliseconds()
		}
	}
	return meta
}
