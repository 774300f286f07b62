package http

import (
	"errors"
	stdhttp "net/http"

	apperrors "github.com/fairy-root/media-downloader-bot/internal/common/errors"
	mw "github.com/fairy-root/media-downloader-bot/internal/http/middleware"
	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/fairy-root/media-downloader-bot/internal/service/premium"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Code      apperrors.ErrorCode `json:"code"`
	Error     string              `json:"error"`
	RequestID string              `json:"request_id"`
}

// toAppError classifies domain errors for the API.
func toAppError(err error) *apperrors.AppError {
	var invalid *admin.InvalidChannelsError
	switch {
	case errors.As(err, &invalid):
		return apperrors.NewValidationError("channels", invalid.Error())
	case errors.Is(err, premium.ErrInvalidDays):
		return apperrors.NewValidationError("days", err.Error())
	case errors.Is(err, admin.ErrNotFound):
		return apperrors.New(apperrors.ErrCodeNotFound, err.Error())
	case errors.Is(err, admin.ErrSelfBan), errors.Is(err, admin.ErrAdminBan):
		return apperrors.NewForbiddenError(err.Error())
	case errors.Is(err, admin.ErrNotPremium), errors.Is(err, admin.ErrAlreadyBanned), errors.Is(err, admin.ErrNotBanned):
		return apperrors.NewConflictError(err.Error())
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Internal server error")
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return stdhttp.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return stdhttp.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		return stdhttp.StatusUnauthorized
	case apperrors.ErrCodeForbidden, apperrors.ErrCodePolicyDenied:
		return stdhttp.StatusForbidden
	case apperrors.ErrCodeConflict:
		return stdhttp.StatusConflict
	case apperrors.ErrCodeCacheError:
		return stdhttp.StatusServiceUnavailable
	case apperrors.ErrCodeTelegramAPI:
		return stdhttp.StatusBadGateway
	default:
		return stdhttp.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	status := statusFor(appErr.Code)
	requestID := mw.GetRequestID(c)

	event := log.Info()
	if appErr.IsInternal() {
		event = log.Error().Strs("stack", appErr.Stack)
	}
	event.Err(err).
		Str("request_id", requestID).
		Str("code", string(appErr.Code)).
		Int64("actor_id", mw.UserID(c)).
		Msg("API request failed")

	c.AbortWithStatusJSON(status, ErrorResponse{Code: appErr.Code, Error: appErr.Message, RequestID: requestID})
}
