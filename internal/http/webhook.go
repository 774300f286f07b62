package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	stdhttp "net/http"

	mw "github.com/fairy-root/media-downloader-bot/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	secretHeader   = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes = 1 << 20
)

// UpdatePublisher hands a raw Telegram update to the ingestion queue.
type UpdatePublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// WebhookHandler accepts Telegram webhook calls. Updates are queued, not processed inline,
// so Telegram gets its answer before any download starts.
type WebhookHandler struct {
	secret    string
	publisher UpdatePublisher
}

func NewWebhookHandler(secret string, publisher UpdatePublisher) *WebhookHandler {
	return &WebhookHandler{secret: secret, publisher: publisher}
}

func (h *WebhookHandler) Register(r gin.IRouter) {
	r.POST("/telegram/webhook", h.receive)
}

func (h *WebhookHandler) receive(c *gin.Context) {
	got := c.GetHeader(secretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		c.AbortWithStatusJSON(stdhttp.StatusUnauthorized, gin.H{"error": "invalid secret token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateBytes))
	if err != nil {
		c.AbortWithStatusJSON(stdhttp.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var head struct {
		UpdateID *int `json:"update_id"`
	}
	if err := json.Unmarshal(body, &head); err != nil || head.UpdateID == nil {
		// a malformed update will never become valid; do not make Telegram retry it
		log.Warn().Err(err).Str("request_id", mw.GetRequestID(c)).Msg("Dropping malformed webhook update")
		c.Status(stdhttp.StatusOK)
		return
	}

	if err := h.publisher.Publish(c.Request.Context(), body); err != nil {
		log.Error().Err(err).Int("update_id", *head.UpdateID).Msg("Failed to queue update")
		c.AbortWithStatusJSON(stdhttp.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
		return
	}
	c.Status(stdhttp.StatusOK)
}
