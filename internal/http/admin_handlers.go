package http

import (
	stdhttp "net/http"
	"strconv"
	"time"

	apperrors "github.com/fairy-root/media-downloader-bot/internal/common/errors"
	mw "github.com/fairy-root/media-downloader-bot/internal/http/middleware"
	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/gin-gonic/gin"
)

// AdminHandlers exposes the administrative operations to the admin mini app.
type AdminHandlers struct {
	service *admin.Service
}

func NewAdminHandlers(svc *admin.Service) *AdminHandlers {
	return &AdminHandlers{service: svc}
}

// Register mounts the admin routes on r. Authentication is applied by the caller.
func (h *AdminHandlers) Register(r gin.IRouter) {
	r.GET("/stats", h.stats)
	r.GET("/users", h.listUsers)
	r.POST("/users/:id/premium", h.grantPremium)
	r.DELETE("/users/:id/premium", h.revokePremium)
	r.POST("/bans/:id", h.ban)
	r.DELETE("/bans/:id", h.unban)
	r.PUT("/channel-gate", h.setChannelGate)
}

type grantPremiumRequest struct {
	Days int `json:"days"`
}

type grantPremiumResponse struct {
	UserID    int64     `json:"user_id"`
	Days      int       `json:"days"`
	ExpiresAt time.Time `json:"expires_at"`
}

type channelGateRequest struct {
	Enabled  bool     `json:"enabled"`
	Channels []string `json:"channels"`
}

func (h *AdminHandlers) stats(c *gin.Context) {
	st, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(stdhttp.StatusOK, st)
}

func (h *AdminHandlers) listUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{"users": users, "total": len(users)})
}

func (h *AdminHandlers) grantPremium(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req grantPremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("body", "invalid json"))
		return
	}
	expiry, err := h.service.GrantPremium(c.Request.Context(), id, req.Days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(stdhttp.StatusOK, grantPremiumResponse{UserID: id, Days: req.Days, ExpiresAt: expiry})
}

func (h *AdminHandlers) revokePremium(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.service.RevokePremium(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(stdhttp.StatusNoContent)
}

func (h *AdminHandlers) ban(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.service.Ban(c.Request.Context(), mw.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(stdhttp.StatusNoContent)
}

func (h *AdminHandlers) unban(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.service.Unban(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(stdhttp.StatusNoContent)
}

func (h *AdminHandlers) setChannelGate(c *gin.Context) {
	var req channelGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("body", "invalid json"))
		return
	}
	if req.Channels == nil {
		req.Channels = []string{}
	}
	cfg, err := h.service.SetChannelGate(c.Request.Context(), req.Enabled, req.Channels)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(stdhttp.StatusOK, cfg)
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperrors.NewValidationError("id", "invalid user id"))
		return 0, false
	}
	return id, true
}
