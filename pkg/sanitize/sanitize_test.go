package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "  hi there  ", "hi there"},
		{"script removed", `hello<script>alert(1)</script>`, "hello"},
		{"formatting kept", "<b>bold</b>", "<b>bold</b>"},
		{"control chars", "a\x00b\nc", "ab\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageContent(tt.input))
		})
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Red", PlainText(" <i>Red</i> "))
	assert.Equal(t, "", PlainText("<script>x</script>"))
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/v.mp4", SanitizeURL(" https://cdn.example.com/v.mp4 "))
	assert.Equal(t, "https://a.example/xy", SanitizeURL("https://a.example/x<y>"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"clip.mp4", "clip.mp4"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\bob\voice.ogg`, "voice.ogg"},
		{"a\x00b.png", "ab.png"},
		{"..", ""},
		{"dir/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.input))
		})
	}
}
