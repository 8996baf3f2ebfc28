// Package platform defines the capability handle the core consumes to talk
// to the chat platform, and the error taxonomy callers use to decide
// between retrying, degrading, and purging state.
package platform

import (
	"context"
	"time"

	"github.com/jibinmichael/paperforslack/pkg/models"
)

// Client is the per-workspace capability handle. Implementations are safe
// for concurrent use across channels; the core serializes per-channel
// operations itself via the busy flag.
type Client interface {
	// PostMessage posts plain text into a channel. Used for interactive
	// replies and the degraded-mode summary fallback.
	PostMessage(ctx context.Context, channelID, text string) error

	// FetchHistory returns channel messages newer than oldest, capped at
	// limit, in chronological order. System and bot-authored entries are
	// already filtered out.
	FetchHistory(ctx context.Context, channelID string, oldest time.Time, limit int) ([]models.Message, error)

	// ChannelCanvasID returns the id of the canvas attached to the
	// channel, or "" when none exists.
	ChannelCanvasID(ctx context.Context, channelID string) (string, error)

	// CreateChannelCanvas creates the channel canvas with the given
	// markdown body and returns its id.
	CreateChannelCanvas(ctx context.Context, channelID, markdown string) (string, error)

	// ReplaceCanvasBody replaces the entire canvas document with markdown.
	ReplaceCanvasBody(ctx context.Context, canvasID, markdown string) error

	// RenameCanvas updates the canvas title. Best-effort: implementations
	// may return ErrCodeUnsupported and callers must treat failure as
	// non-fatal.
	RenameCanvas(ctx context.Context, canvasID, title string) error

	// UserDisplayName resolves a user id to a display name.
	UserDisplayName(ctx context.Context, userID string) (string, error)

	// BotUserID returns the bot's own user id in this workspace, used to
	// filter the bot's messages out of history and live traffic.
	BotUserID() string
}
