package summarize

import (
	"strings"
	"testing"
	"time"

	"github.com/jibinmichael/paperforslack/pkg/models"
)

func TestTranscript(t *testing.T) {
	ts := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)
	msgs := []models.Message{
		{UserID: "U1", UserName: "ada", Text: "shipping today", Timestamp: ts},
		{UserID: "U2", Text: "nice", Timestamp: ts.Add(time.Minute)},
	}

	got := Transcript(msgs)
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != "[Aug 28 14:30] ada: shipping today" {
		t.Errorf("line 0 = %q", lines[0])
	}
	// Unresolved names fall back to the user id.
	if lines[1] != "[Aug 28 14:31] U2: nice" {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestTranscriptEmpty(t *testing.T) {
	if got := Transcript(nil); got != "" {
		t.Fatalf("Transcript(nil) = %q, want empty", got)
	}
}
