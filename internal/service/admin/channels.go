package admin

import (
	"fmt"
	"regexp"
	"strings"
)

var channelSeparators = regexp.MustCompile(`[\s,;]+`)

// InvalidChannelsError lists channel references that are neither @usernames nor numeric chat ids.
type InvalidChannelsError struct {
	Invalid []string
}

func (e *InvalidChannelsError) Error() string {
	return fmt.Sprintf("invalid channel formats: %s", strings.Join(e.Invalid, ", "))
}

// ParseChannels splits admin input on whitespace, commas and semicolons.
// "none" (any case) clears the list.
func ParseChannels(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "none") {
		return []string{}, nil
	}
	channels := []string{}
	for _, ch := range channelSeparators.Split(raw, -1) {
		if ch != "" {
			channels = append(channels, ch)
		}
	}
	if err := ValidateChannels(channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// ValidateChannels rejects the whole list if any entry is malformed.
func ValidateChannels(channels []string) error {
	var invalid []string
	for _, ch := range channels {
		if !validChannel(ch) {
			invalid = append(invalid, ch)
		}
	}
	if len(invalid) > 0 {
		return &InvalidChannelsError{Invalid: invalid}
	}
	return nil
}

func validChannel(ch string) bool {
	switch {
	case strings.HasPrefix(ch, "@"):
		return len(ch) > 1
	case strings.HasPrefix(ch, "-"):
		return isDigits(ch[1:])
	default:
		return isDigits(ch)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
