package client

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxSummaryLen = 300

// SummarizeBody shortens a response body for logs. HTML error pages are reduced
// to their title; other bodies are whitespace-collapsed and truncated.
func SummarizeBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}

	if looksLikeHTML(trimmed) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
		if err == nil {
			title := collapse(doc.Find("title").First().Text())
			if title == "" {
				title = collapse(doc.Find("h1").First().Text())
			}
			if title != "" {
				return "HTML page: " + truncate(title, maxSummaryLen)
			}
		}
		return "HTML page"
	}

	return truncate(collapse(trimmed), maxSummaryLen)
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") || strings.HasPrefix(lower, "<!doctype html")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
