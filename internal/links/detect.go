// Package links extracts URLs and date mentions from message text for the
// canvas digest footer.
package links

import (
	"regexp"
	"strings"
)

// Default caps keep the digest footer readable.
const (
	DefaultMaxLinks = 10
	DefaultMaxDates = 10
)

var httpURLPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractLinks extracts URLs from message texts, deduplicated in first-seen
// order, capped at maxLinks.
func ExtractLinks(texts []string, maxLinks int) []string {
	if maxLinks <= 0 {
		maxLinks = DefaultMaxLinks
	}

	seen := make(map[string]bool)
	var urls []string
	for _, text := range texts {
		for _, match := range httpURLPattern.FindAllString(text, -1) {
			// Clean trailing punctuation and Slack's link wrapper
			match = strings.TrimRight(match, ".,;:!?)>")

			if !seen[match] && len(urls) < maxLinks {
				seen[match] = true
				urls = append(urls, match)
			}
		}
	}
	return urls
}
