// Package models defines the shared data types for Paper: captured channel
// messages, generated summaries, and workspace installations.
package models

import (
	"time"
)

// ChannelKey identifies a channel within an installed workspace. It is the
// unit of batching, canvas association, and mutual exclusion.
type ChannelKey struct {
	TeamID    string
	ChannelID string
}

// String returns the key in "team:channel" form, used for logging and as a
// map key in metrics labels.
func (k ChannelKey) String() string {
	return k.TeamID + ":" + k.ChannelID
}

// Message is one captured channel message. Messages are immutable once
// captured; the scheduler and summarizer only ever read them.
type Message struct {
	// UserID is the platform identifier of the author.
	UserID string

	// UserName is the resolved display name, when known. May be empty for
	// live messages; the summarizer falls back to UserID.
	UserName string

	// Text is the message body with bot mentions stripped.
	Text string

	// Timestamp is when the message was posted.
	Timestamp time.Time

	// ThreadTS is the parent thread timestamp for threaded replies,
	// empty for top-level messages.
	ThreadTS string
}

// Summary is the product of one summarization cycle. It is ephemeral:
// produced fresh per cycle and consumed immediately by the canvas
// synchronizer.
type Summary struct {
	Title string
	Body  string

	// Links and Dates are extracted from the message window, not generated
	// by the model.
	Links []string
	Dates []string

	// MessageCount is the number of messages the summary covers.
	MessageCount int

	// Timezone is a hint for rendering timestamps in the canvas.
	Timezone string

	GeneratedAt time.Time

	// Degraded marks a summary whose body is a placeholder because the
	// gateway failed. The cycle still completes so the canvas carries a
	// visible signal instead of silently going stale.
	Degraded bool
}

// InstallMode distinguishes how workspace credentials were obtained.
type InstallMode string

const (
	// InstallModeSingle is a static-credential deployment serving one
	// workspace, synthesized at startup from configuration.
	InstallModeSingle InstallMode = "single"

	// InstallModeMulti is an OAuth installation created by the install
	// flow and removed on app_uninstalled.
	InstallModeMulti InstallMode = "multi"
)

// Installation records an authenticated workspace. Immutable after
// creation except for deletion on uninstall.
type Installation struct {
	Mode        InstallMode
	TeamID      string
	TeamName    string
	BotToken    string
	BotUserID   string
	Scopes      []string
	InstalledAt time.Time
}

// Valid reports whether the installation carries enough to call the
// platform.
func (i Installation) Valid() bool {
	return i.TeamID != "" && i.BotToken != ""
}
