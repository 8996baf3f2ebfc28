package canvas

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jibinmichael/paperforslack/pkg/models"
)

// fallbackMessageLimit keeps the plain-message fallback under Slack's
// message size ceiling with headroom for mrkdwn overhead.
const fallbackMessageLimit = 3900

// Render produces the full canvas markdown body for a summary. Re-running
// with the same summary yields the same document, which is what makes the
// full-body replace idempotent.
func Render(summary models.Summary, tz string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", summary.Title)
	b.WriteString(summary.Body)
	b.WriteString("\n")

	if len(summary.Links) > 0 {
		b.WriteString("\n## Links\n")
		for _, link := range summary.Links {
			fmt.Fprintf(&b, "* %s\n", link)
		}
	}

	if len(summary.Dates) > 0 {
		b.WriteString("\n## Dates mentioned\n")
		for _, date := range summary.Dates {
			fmt.Fprintf(&b, "* %s\n", date)
		}
	}

	fmt.Fprintf(&b, "\n---\n_Updated %s · %d messages_\n",
		formatUpdated(summary.GeneratedAt, tz), summary.MessageCount)
	return b.String()
}

// RenderFallback produces the plain-message form of the summary used when
// canvas writes are denied.
func RenderFallback(summary models.Summary) string {
	text := fmt.Sprintf("*%s*\n\n%s", summary.Title, summary.Body)
	if len(summary.Links) > 0 {
		text += "\n\nLinks: " + strings.Join(summary.Links, " · ")
	}
	if len(text) > fallbackMessageLimit {
		cut := fallbackMessageLimit
		// Back up to a rune boundary so the cut never splits a
		// multi-byte character.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "…"
	}
	return text
}

func formatUpdated(t time.Time, tz string) string {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			t = t.In(loc)
		}
	}
	return t.Format("Jan 2, 2006 at 15:04 MST")
}
