package premium

import (
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const payloadPrefix = "premium_"

var ErrInvalidPayload = errors.New("invalid invoice payload")

// Invoice is the decoded form of an invoice payload.
type Invoice struct {
	TierKey string
	UserID  int64
	Nonce   string
}

// EncodePayload builds premium_<tier>_<user>_<nonce>. Tier keys may contain underscores.
func EncodePayload(tierKey string, userID int64) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return payloadPrefix + tierKey + "_" + strconv.FormatInt(userID, 10) + "_" + nonce
}

// ParsePayload decodes a payload built by EncodePayload. The user id segment must be numeric.
func ParsePayload(payload string) (Invoice, error) {
	if !strings.HasPrefix(payload, payloadPrefix) {
		return Invoice{}, ErrInvalidPayload
	}
	parts := strings.Split(payload, "_")
	if len(parts) < 4 {
		return Invoice{}, ErrInvalidPayload
	}
	userID, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return Invoice{}, ErrInvalidPayload
	}
	return Invoice{
		TierKey: strings.Join(parts[1:len(parts)-2], "_"),
		UserID:  userID,
		Nonce:   parts[len(parts)-1],
	}, nil
}
