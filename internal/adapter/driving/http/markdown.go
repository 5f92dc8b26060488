package httphandler

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	noteRenderer  goldmark.Markdown
	noteSanitizer *bluemonday.Policy
)

func init() {
	noteRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
	)

	noteSanitizer = bluemonday.UGCPolicy()
}

// RenderMarkdown converts an operator note written in markdown to sanitized
// HTML. Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := noteRenderer.Convert([]byte(src), &buf); err != nil {
		return noteSanitizer.Sanitize(src)
	}

	return noteSanitizer.Sanitize(buf.String())
}
