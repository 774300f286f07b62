package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/gin-gonic/gin"
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// RedisCache caches successful GET responses for ttl, keyed by full URL.
// A nil client disables caching.
func RedisCache(rdb *rplatform.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := "httpcache:" + c.Request.Method + ":" + c.Request.URL.Path + "?" + c.Request.URL.Query().Encode()
		if bs, err := rdb.Get(c.Request.Context(), key).Bytes(); err == nil && len(bs) > 0 {
			var entry cachedResponse
			if json.Unmarshal(bs, &entry) == nil {
				c.Header("X-Cache", "HIT")
				c.Data(entry.Status, entry.ContentType, entry.Body)
				c.Abort()
				return
			}
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Header("X-Cache", "MISS")
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			return
		}
		entry := cachedResponse{Status: status, ContentType: w.Header().Get("Content-Type"), Body: w.buf.Bytes()}
		if payload, err := json.Marshal(entry); err == nil {
			_ = rdb.SetEx(context.WithoutCancel(c.Request.Context()), key, payload, ttl).Err()
		}
	}
}
