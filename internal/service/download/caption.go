package download

import (
	"fmt"
	"html"
	"strings"

	"github.com/fairy-root/media-downloader-bot/internal/service/fetch"
)

const (
	maxTitleRunes    = 100
	maxUploaderRunes = 50
	maxCaptionRunes  = 1020
)

func truncate(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}

// Caption renders title, uploader and duration as an HTML caption.
func Caption(md fetch.Metadata) string {
	var parts []string
	if md.Title != "" {
		title, cut := truncate(md.Title, maxTitleRunes)
		if cut {
			title += "..."
		}
		parts = append(parts, "🎬 <b>"+html.EscapeString(title)+"</b>")
	}
	if md.Uploader != "" {
		uploader, _ := truncate(md.Uploader, maxUploaderRunes)
		parts = append(parts, "👤 <i>"+html.EscapeString(uploader)+"</i>")
	}
	if secs := int(md.DurationSeconds); secs > 0 {
		parts = append(parts, fmt.Sprintf("⏱️ %02d:%02d", secs/60, secs%60))
	}
	caption := strings.Join(parts, "\n")
	if c, cut := truncate(caption, maxCaptionRunes); cut {
		return c + "..."
	}
	return caption
}
