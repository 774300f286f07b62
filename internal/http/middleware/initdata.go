package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	initdata "github.com/telegram-mini-apps/init-data-golang"
)

// Context keys for Telegram init-data derived fields.
const (
	UserIDCtxKey   = "user_id"
	UserCtxKey     = "user"
	UsernameCtxKey = "username"
)

// InitData validates Telegram Mini Apps init data and stores the user in the gin context.
// Init data is read from the "X-Telegram-Init-Data" header, then the "init_data" query parameter.
// expIn == 0 disables the age check.
func InitData(token string, expIn time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "init-data validation is not configured"})
			return
		}

		raw := c.GetHeader("X-Telegram-Init-Data")
		if raw == "" {
			raw = c.Query("init_data")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing init_data"})
			return
		}

		if err := initdata.Validate(raw, token, expIn); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid init_data"})
			return
		}
		parsed, err := initdata.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid init_data format"})
			return
		}
		if parsed.User.ID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "init_data has no user"})
			return
		}

		c.Set(UserIDCtxKey, parsed.User.ID)
		c.Set(UserCtxKey, parsed.User)
		c.Set(UsernameCtxKey, parsed.User.Username)
		c.Next()
	}
}

// UserID returns the authenticated user id, or 0.
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(UserIDCtxKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// AdminCheck reports whether id may use the admin API right now.
type AdminCheck func(ctx context.Context, id int64) (bool, error)

// RequireAdmin lets only users that currently act as admin through. It must run after InitData.
func RequireAdmin(isAdmin AdminCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := UserID(c)
		if id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Telegram Init Data required"})
			return
		}
		ok, err := isAdmin(c.Request.Context(), id)
		if err != nil {
			log.Error().Err(err).Int64("user_id", id).Str("request_id", GetRequestID(c)).Msg("Admin check failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin check unavailable"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: admin access required"})
			return
		}
		c.Next()
	}
}
