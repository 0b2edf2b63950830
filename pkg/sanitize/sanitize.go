package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
	urlUnsafe    = regexp.MustCompile(`[<>;\\\s]`)
)

// MessageContent cleans user-authored message text. Basic formatting markup
// survives; scripts, styles and event handlers are removed.
func MessageContent(input string) string {
	input = StripControlCharacters(input)
	return strings.TrimSpace(ugcPolicy.Sanitize(input))
}

// PlainText removes all markup. Used for poll questions, options and titles.
func PlainText(input string) string {
	input = StripControlCharacters(input)
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// SanitizeFilename keeps only the final path element of a client file name
// and drops control characters. Returns "" when nothing usable remains.
func SanitizeFilename(filename string) string {
	filename = StripControlCharacters(filename)
	filename = strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}
	filename = strings.TrimSpace(filename)
	if filename == "." || filename == ".." {
		return ""
	}
	return filename
}

// SanitizeURL sanitizes URL input
func SanitizeURL(url string) string {
	url = strings.TrimSpace(url)
	return urlUnsafe.ReplaceAllString(url, "")
}

// StripControlCharacters removes control characters except newlines and tabs
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
