package fetch

import (
	"regexp"
	"strings"
	"unicode"
)

const maxFilenameRunes = 60

var (
	reservedChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespace    = regexp.MustCompile(`\s+`)
	underscores   = regexp.MustCompile(`__+`)
)

// SanitizeFilename turns a media title into a safe file name stem.
func SanitizeFilename(name string) string {
	s := reservedChars.ReplaceAllString(name, "_")
	s = strings.Trim(s, " .")
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == ' ' {
			return r
		}
		return -1
	}, s)
	s = whitespace.ReplaceAllString(s, "_")
	s = underscores.ReplaceAllString(s, "_")
	if s == "" {
		return "downloaded_media"
	}
	if r := []rune(s); len(r) > maxFilenameRunes {
		s = string(r[:maxFilenameRunes])
	}
	return s
}
