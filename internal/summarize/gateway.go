// Package summarize turns a window of channel messages into a digest via
// an LLM gateway, bounding how much of the buffer is forwarded in one call.
package summarize

import (
	"context"
	"time"

	"github.com/jibinmichael/paperforslack/internal/links"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// PlaceholderBody is published when the gateway fails, so the canvas shows
// a visible signal instead of silently going stale.
const PlaceholderBody = "_Something went wrong generating this summary. It will be refreshed on the next update._"

// DefaultTitle is used when title generation fails or is skipped.
const DefaultTitle = "Channel notes"

// Gateway is the external summarization service.
type Gateway interface {
	// Summarize returns formatted digest text for an ordered message
	// window.
	Summarize(ctx context.Context, msgs []models.Message) (string, error)

	// Title returns a short document title for the window.
	Title(ctx context.Context, msgs []models.Message) (string, error)
}

// WindowConfig tunes how a long buffer is truncated before it is sent to
// the gateway: keep the earliest Head and latest Tail messages and an
// evenly spaced Sample of the middle. The ratio is heuristic, not a
// contract.
type WindowConfig struct {
	Head   int
	Tail   int
	Sample int
}

// DefaultWindow is the deployment default truncation.
var DefaultWindow = WindowConfig{Head: 10, Tail: 20, Sample: 10}

// Window truncates msgs per cfg, preserving chronological order. Buffers
// within the combined budget pass through untouched.
func Window(msgs []models.Message, cfg WindowConfig) []models.Message {
	if cfg.Head <= 0 && cfg.Tail <= 0 {
		cfg = DefaultWindow
	}
	budget := cfg.Head + cfg.Tail + cfg.Sample
	if len(msgs) <= budget {
		return msgs
	}

	out := make([]models.Message, 0, budget)
	out = append(out, msgs[:cfg.Head]...)

	middle := msgs[cfg.Head : len(msgs)-cfg.Tail]
	if cfg.Sample > 0 && len(middle) > 0 {
		step := len(middle) / cfg.Sample
		if step < 1 {
			step = 1
		}
		for i := 0; i < len(middle) && len(out) < cfg.Head+cfg.Sample; i += step {
			out = append(out, middle[i])
		}
	}

	out = append(out, msgs[len(msgs)-cfg.Tail:]...)
	return out
}

// Compose runs the gateway over a truncated window and assembles the full
// summary, including extracted links and dates. A gateway failure yields a
// degraded summary with a placeholder body rather than an error: the cycle
// must still complete so the lock is released and the buffer cleared.
func Compose(ctx context.Context, gw Gateway, msgs []models.Message, window WindowConfig, tz string) models.Summary {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}

	summary := models.Summary{
		Links:        links.ExtractLinks(texts, 0),
		Dates:        links.ExtractDates(texts, 0),
		MessageCount: len(msgs),
		Timezone:     tz,
		GeneratedAt:  time.Now(),
	}

	windowed := Window(msgs, window)

	body, err := gw.Summarize(ctx, windowed)
	if err != nil {
		summary.Body = PlaceholderBody
		summary.Title = DefaultTitle
		summary.Degraded = true
		return summary
	}
	summary.Body = body

	title, err := gw.Title(ctx, windowed)
	if err != nil || title == "" {
		title = DefaultTitle
	}
	summary.Title = title
	return summary
}
