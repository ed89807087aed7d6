// Package report renders a generation run as markdown and as a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ternarybob/adforge/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; color: #222; line-height: 1.5; }
h2 { border-bottom: 1px solid #ddd; padding-bottom: .3rem; margin-top: 2.5rem; }
img { max-width: 100%%; border-radius: 6px; }
blockquote { border-left: 4px solid #ccc; margin: 0; padding-left: 1rem; color: #444; }
em { color: #888; }
</style>
</head>
<body>
%s
</body>
</html>
`

// RenderMarkdown builds the markdown report: a header with the inputs and
// one section per audience with its script and image state
func RenderMarkdown(snapshot models.RunSnapshot) string {
	var b strings.Builder

	b.WriteString("# Campaign report\n\n")
	if snapshot.ProductDescription != "" {
		fmt.Fprintf(&b, "**Product:** %s\n\n", singleLine(snapshot.ProductDescription))
	}
	if snapshot.Audiences != "" {
		fmt.Fprintf(&b, "**Audiences:** %s\n\n", singleLine(snapshot.Audiences))
	}

	_, ready, failed := snapshot.Counts()
	fmt.Fprintf(&b, "**Status:** %s (%d of %d images ready", snapshot.Status, ready, len(snapshot.Items))
	if failed > 0 {
		fmt.Fprintf(&b, ", %d failed", failed)
	}
	b.WriteString(")\n\n")
	if snapshot.Error != "" {
		fmt.Fprintf(&b, "**Error:** %s\n\n", singleLine(snapshot.Error))
	}

	for i, item := range snapshot.Items {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, singleLine(item.Audience))

		for _, line := range strings.Split(strings.TrimSpace(item.Script), "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n")

		switch item.Image.Status {
		case models.ImageStatusReady:
			fmt.Fprintf(&b, "![%s](%s)\n\n", singleLine(item.Audience), item.Image.Ref)
		case models.ImageStatusFailed:
			fmt.Fprintf(&b, "*Image failed: %s*\n\n", singleLine(item.Image.Error))
		default:
			b.WriteString("*Image pending*\n\n")
		}

		fmt.Fprintf(&b, "**Image prompt:** %s\n\n", singleLine(item.ImagePrompt))
	}

	return b.String()
}

// RenderHTML converts the markdown report to a complete HTML document
func RenderHTML(snapshot models.RunSnapshot) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(snapshot)), &buf); err != nil {
		return nil, fmt.Errorf("failed to convert report to HTML: %w", err)
	}

	title := "Campaign report"
	if snapshot.ProductDescription != "" {
		title = "Campaign report: " + escapeHTML(truncate(singleLine(snapshot.ProductDescription), 80))
	}
	return []byte(fmt.Sprintf(pageTemplate, title, buf.String())), nil
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func escapeHTML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
	)
	return replacer.Replace(s)
}
