// Package slackapi implements the platform client against the Slack Web
// API via slack-go.
package slackapi

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/jibinmichael/paperforslack/internal/platform"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// Client talks to one workspace with one bot token.
type Client struct {
	api       *slack.Client
	botUserID string

	nameMu sync.RWMutex
	names  map[string]string
}

var _ platform.Client = (*Client)(nil)

// New wraps an already-constructed slack.Client. botUserID may be empty
// when unknown; history filtering then relies on bot_id alone.
func New(api *slack.Client, botUserID string) *Client {
	return &Client{
		api:       api,
		botUserID: botUserID,
		names:     make(map[string]string),
	}
}

// NewFromInstallation builds a client from an installation's bot token.
func NewFromInstallation(inst models.Installation) *Client {
	return New(slack.New(inst.BotToken), inst.BotUserID)
}

// Identify resolves the bot's own identity via auth.test. Used at startup
// in single-workspace mode where the configured token carries no metadata.
func Identify(ctx context.Context, botToken string) (teamID, teamName, botUserID string, err error) {
	resp, err := slack.New(botToken).AuthTestContext(ctx)
	if err != nil {
		return "", "", "", mapError("auth.test", err)
	}
	return resp.TeamID, resp.Team, resp.UserID, nil
}

func (c *Client) BotUserID() string {
	return c.botUserID
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl())
	if err != nil {
		return mapError("chat.postMessage", err)
	}
	return nil
}

// FetchHistory returns channel messages newer than oldest in chronological
// order, dropping system subtypes and bot-authored entries.
func (c *Client) FetchHistory(ctx context.Context, channelID string, oldest time.Time, limit int) ([]models.Message, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    formatSlackTimestamp(oldest),
		Limit:     limit,
	})
	if err != nil {
		return nil, mapError("conversations.history", err)
	}

	out := make([]models.Message, 0, len(resp.Messages))
	for _, raw := range resp.Messages {
		if raw.SubType != "" || raw.BotID != "" {
			continue
		}
		if raw.User == "" || (c.botUserID != "" && raw.User == c.botUserID) {
			continue
		}
		ts, err := parseSlackTimestamp(raw.Timestamp)
		if err != nil {
			continue
		}
		out = append(out, models.Message{
			UserID:    raw.User,
			Text:      raw.Text,
			Timestamp: ts,
			ThreadTS:  raw.ThreadTimestamp,
		})
	}

	// The API returns newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ChannelCanvasID reads the canvas attached to the channel from
// conversations.info. Returns "" when the channel has no canvas yet.
func (c *Client) ChannelCanvasID(ctx context.Context, channelID string) (string, error) {
	info, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		return "", mapError("conversations.info", err)
	}
	if info.Properties == nil {
		return "", nil
	}
	return info.Properties.Canvas.FileId, nil
}

func (c *Client) CreateChannelCanvas(ctx context.Context, channelID, markdown string) (string, error) {
	id, err := c.api.CreateChannelCanvasContext(ctx, channelID, slack.DocumentContent{
		Type:     "markdown",
		Markdown: markdown,
	})
	if err != nil {
		return "", mapError("conversations.canvases.create", err)
	}
	return id, nil
}

func (c *Client) ReplaceCanvasBody(ctx context.Context, canvasID, markdown string) error {
	err := c.api.EditCanvasContext(ctx, slack.EditCanvasParams{
		CanvasID: canvasID,
		Changes: []slack.CanvasChange{{
			Operation: "replace",
			DocumentContent: slack.DocumentContent{
				Type:     "markdown",
				Markdown: markdown,
			},
		}},
	})
	if err != nil {
		return mapError("canvases.edit", err)
	}
	return nil
}

// RenameCanvas is unsupported: Slack has no canvas title API, the title
// lives in the document heading. Callers already render it there.
func (c *Client) RenameCanvas(ctx context.Context, canvasID, title string) error {
	return platform.NewError(platform.ErrCodeUnsupported, "canvas.rename",
		"slack canvases have no standalone title", nil)
}

// UserDisplayName resolves a user id, preferring the profile display name.
// Results are cached for the life of the client.
func (c *Client) UserDisplayName(ctx context.Context, userID string) (string, error) {
	c.nameMu.RLock()
	name, ok := c.names[userID]
	c.nameMu.RUnlock()
	if ok {
		return name, nil
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", mapError("users.info", err)
	}
	name = user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = user.Name
	}

	c.nameMu.Lock()
	c.names[userID] = name
	c.nameMu.Unlock()
	return name, nil
}

// parseSlackTimestamp converts a Slack "1712345678.000200" timestamp.
func parseSlackTimestamp(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	secs, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var micros int64
	if frac != "" {
		micros, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(secs, micros*int64(time.Microsecond)), nil
}

func formatSlackTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}
