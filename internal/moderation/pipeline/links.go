package pipeline

import (
	"regexp"
	"strings"
)

var (
	// Any http/https link
	urlPattern = regexp.MustCompile(`(?i)https?://[^\s]+`)
	// Bare domains without a scheme (example.com, short.ly and so on)
	domainPattern = regexp.MustCompile(`(?i)\b[a-z0-9][-a-z0-9]*\.(com|net|org|io|me|cc|ly|gl|su|info|biz|xyz|online|site|shop|store|app|dev)\b[^\s]*`)
	// t.me invite and account links
	tmePattern = regexp.MustCompile(`(?i)t\.me/[a-zA-Z0-9_+]+`)
	// @mention of another group or channel
	mentionPattern = regexp.MustCompile(`@[a-zA-Z][a-zA-Z0-9_]{4,}`)
)

// FindLink returns the first link-like match in the text, or "".
func FindLink(text string) string {
	if text == "" {
		return ""
	}

	lower := strings.ToLower(text)

	for _, p := range []*regexp.Regexp{urlPattern, tmePattern, domainPattern, mentionPattern} {
		if match := p.FindString(lower); match != "" {
			return match
		}
	}

	return ""
}
