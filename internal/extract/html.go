package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTitle    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlDropped  = regexp.MustCompile(`(?is)<(script|style|noscript|svg|head)\b[^>]*>.*?</(script|style|noscript|svg|head)>`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlBlocks   = regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|section|article)\b[^>]*>`)
	htmlTags     = regexp.MustCompile(`<[^>]+>`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)
)

// extractHTML strips markup and returns the visible text plus the <title>, if any.
func extractHTML(src *Source) (*Text, error) {
	text, err := extractPlain(src)
	if err != nil {
		return nil, err
	}
	content := text.Body

	var title string
	if m := htmlTitle.FindStringSubmatch(content); len(m) > 1 {
		title = strings.TrimSpace(html.UnescapeString(htmlTags.ReplaceAllString(m[1], "")))
	}

	content = htmlDropped.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = htmlBlocks.ReplaceAllString(content, "\n")
	content = htmlTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = spaceRuns.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return &Text{Title: title, Body: strings.Join(kept, "\n")}, nil
}
