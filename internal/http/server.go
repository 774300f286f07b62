package http

import (
	"context"
	stdhttp "net/http"
	"time"

	mw "github.com/fairy-root/media-downloader-bot/internal/http/middleware"
	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the HTTP layer serves.
type Deps struct {
	Debug          bool
	AllowedOrigins []string
	BotToken       string
	InitDataTTL    time.Duration
	IsAdmin        mw.AdminCheck
	Admin          *admin.Service
	Checks         map[string]HealthCheck

	// Redis enables the short-lived admin GET cache; nil disables it.
	Redis *rplatform.Client

	// Webhook is nil in polling mode.
	Webhook *WebhookHandler
}

// NewRouter builds the gin engine with every route and middleware wired.
func NewRouter(d Deps) *gin.Engine {
	if !d.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.RequestID(), mw.Logger(), mw.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.AllowedOrigins
	if len(d.AllowedOrigins) == 0 || (len(d.AllowedOrigins) == 1 && d.AllowedOrigins[0] == "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Telegram-Init-Data"}
	r.Use(cors.New(corsConfig))

	health := &healthHandlers{checks: d.Checks}
	r.GET("/health", health.live)
	r.GET("/ready", health.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if d.Webhook != nil {
		d.Webhook.Register(r)
	}

	v1 := r.Group("/api/v1/admin",
		mw.InitData(d.BotToken, d.InitDataTTL),
		mw.RequireAdmin(d.IsAdmin),
		mw.RedisCache(d.Redis, 2*time.Second),
	)
	NewAdminHandlers(d.Admin).Register(v1)

	return r
}

// NewServer wraps handler with the process-wide timeouts.
func NewServer(addr string, handler stdhttp.Handler) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

type healthHandlers struct {
	checks map[string]HealthCheck
}

func (h *healthHandlers) live(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"service":   "media-downloader-bot",
	})
}

func (h *healthHandlers) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			c.JSON(stdhttp.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   name + " unavailable",
				"details": err.Error(),
			})
			return
		}
	}
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ready", "timestamp": time.Now().UTC()})
}
