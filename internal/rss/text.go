package rss

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const excerptLength = 200

// cleanText strips markup and boilerplate from an HTML fragment and collapses
// whitespace.
func cleanText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style, noscript, iframe").Remove()
	doc.Find(".read-more, .continue-reading").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// excerpt returns cleaned text truncated to maxRunes, cut back to the last
// word boundary and suffixed with "...".
func excerpt(html string, maxRunes int) string {
	text := cleanText(html)
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	cut := string(runes[:maxRunes])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i >= 0 {
		cut = strings.TrimRightFunc(cut[:i], unicode.IsSpace)
	}
	return cut + "..."
}
