package chat

import "strings"

const (
	titleMaxChars = 30

	// imageTitle is the fallback title for a conversation opened with
	// an image and no text.
	imageTitle = "이미지 분석"
)

// deriveTitle builds a session title from the first user message. Text
// wins over the image fallback; the cut is rune based so multibyte
// Korean text is never split mid-character.
func deriveTitle(text string, hasImage bool) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		if hasImage {
			return imageTitle
		}
		return ""
	}

	runes := []rune(trimmed)
	if len(runes) <= titleMaxChars {
		return trimmed
	}
	return string(runes[:titleMaxChars])
}
