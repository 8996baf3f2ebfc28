package canvas

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jibinmichael/paperforslack/pkg/models"
)

func sampleSummary() models.Summary {
	return models.Summary{
		Title:        "Release planning",
		Body:         "## What happened\n- Shipped the beta",
		Links:        []string{"https://example.com/doc"},
		Dates:        []string{"2026-09-01"},
		MessageCount: 12,
		GeneratedAt:  time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC),
	}
}

func TestRenderLayout(t *testing.T) {
	body := Render(sampleSummary(), "")

	for _, want := range []string{
		"# Release planning",
		"## What happened",
		"## Links",
		"* https://example.com/doc",
		"## Dates mentioned",
		"* 2026-09-01",
		"12 messages",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	s := sampleSummary()
	if Render(s, "UTC") != Render(s, "UTC") {
		t.Fatal("same summary must render to the same document")
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	s := sampleSummary()
	s.Links = nil
	s.Dates = nil
	body := Render(s, "")
	if strings.Contains(body, "## Links") || strings.Contains(body, "## Dates mentioned") {
		t.Fatalf("empty sections should be omitted:\n%s", body)
	}
}

func TestRenderFallbackTruncates(t *testing.T) {
	s := sampleSummary()
	s.Body = strings.Repeat("a very long line of chat digest text ", 400)

	text := RenderFallback(s)
	if len(text) > fallbackMessageLimit+len("…") {
		t.Fatalf("fallback length = %d, want <= %d", len(text), fallbackMessageLimit+len("…"))
	}
	if !strings.HasSuffix(text, "…") {
		t.Fatal("truncated fallback should end with an ellipsis")
	}
	if !strings.HasPrefix(text, "*Release planning*") {
		t.Fatalf("fallback should lead with the bold title: %q", text[:40])
	}
}

func TestRenderFallbackTruncatesOnRuneBoundary(t *testing.T) {
	s := sampleSummary()
	// Three-byte runes guarantee the byte limit lands mid-rune for at
	// least one of the offsets exercised here.
	for pad := 0; pad < 3; pad++ {
		s.Body = strings.Repeat("x", pad) + strings.Repeat("資", fallbackMessageLimit)
		s.Links = nil

		text := RenderFallback(s)
		if !utf8.ValidString(text) {
			t.Fatalf("pad %d: truncation split a multi-byte rune", pad)
		}
		if len(text) > fallbackMessageLimit+len("…") {
			t.Fatalf("pad %d: fallback length = %d, want <= %d", pad, len(text), fallbackMessageLimit+len("…"))
		}
		if !strings.HasSuffix(text, "…") {
			t.Fatalf("pad %d: truncated fallback should end with an ellipsis", pad)
		}
	}
}

func TestRenderFallbackShortMessageUntouched(t *testing.T) {
	s := sampleSummary()
	text := RenderFallback(s)
	if strings.HasSuffix(text, "…") {
		t.Fatal("short fallback should not be truncated")
	}
	if !strings.Contains(text, "Links: https://example.com/doc") {
		t.Fatalf("fallback missing links line: %q", text)
	}
}
