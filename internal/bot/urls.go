package bot

import (
	"regexp"
	"strings"

	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
)

// urlPattern finds bare links such as "vm.tiktok.com/abc" in free text.
var urlPattern = regexp.MustCompile(`(?i)(?:(?:https?|ftp)://)?(?:\S+(?::\S*)?@)?(?:[\p{L}\p{N}](?:[\p{L}\p{N}-]*[\p{L}\p{N}])?\.)+\p{L}{2,}(?::\d{2,5})?(?:/\S*)?`)

// ExtractURL returns the first link of a message body. Entities win over the
// text scan; a missing scheme becomes https.
func ExtractURL(text string, entities []telegram.MessageEntity) string {
	var found string
	for _, e := range entities {
		switch e.Type {
		case "url":
			found = telegram.EntityText(text, e)
		case "text_link":
			found = e.URL
		}
		if found != "" {
			break
		}
	}
	if found == "" {
		found = urlPattern.FindString(text)
	}
	found = strings.TrimSpace(found)
	if found == "" {
		return ""
	}
	lower := strings.ToLower(found)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		found = "https://" + found
	}
	return found
}
