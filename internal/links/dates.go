package links

import (
	"regexp"
	"strings"
)

// Date mention patterns, checked in order: ISO dates, slashed dates, and
// month-name forms like "Jan 5" or "5 January".
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`),
	regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?\b`),
	regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)?\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\b`),
}

// ExtractDates extracts date mentions from message texts, deduplicated in
// first-seen order, capped at maxDates.
func ExtractDates(texts []string, maxDates int) []string {
	if maxDates <= 0 {
		maxDates = DefaultMaxDates
	}

	seen := make(map[string]bool)
	var dates []string
	for _, text := range texts {
		for _, pattern := range datePatterns {
			for _, match := range pattern.FindAllString(text, -1) {
				key := strings.ToLower(match)
				if !seen[key] && len(dates) < maxDates {
					seen[key] = true
					dates = append(dates, match)
				}
			}
		}
	}
	return dates
}
