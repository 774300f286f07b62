package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a Bot API call rejected by Telegram.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// IsTooLarge reports an upload rejected for its size.
func IsTooLarge(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == 413 {
		return true
	}
	d := strings.ToLower(apiErr.Description)
	return strings.Contains(d, "request entity too large") || strings.Contains(d, "file is too big")
}

// IsForbidden reports a 403, e.g. the user blocked the bot or the bot cannot see a chat.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == 403
}
