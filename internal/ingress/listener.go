// Package ingress receives workspace events over Slack Socket Mode and
// hands them to the engine. One connection serves every installed
// workspace; events carry their team id.
package ingress

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/jibinmichael/paperforslack/internal/observability"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// Handler consumes routed events. Implementations must not block: the
// listener calls them from the single event loop.
type Handler interface {
	// OnMessage is called for each ordinary channel message.
	OnMessage(ctx context.Context, teamID, channelID string, msg models.Message)

	// OnMention is called when a user @-mentions the bot. command is the
	// message text with the mention stripped and whitespace trimmed.
	OnMention(ctx context.Context, teamID, channelID, userID, command string)

	// OnMemberJoined is called when any member joins a channel. The
	// engine decides whether the member is the bot itself.
	OnMemberJoined(ctx context.Context, teamID, channelID, userID string)

	// OnUninstall is called when a workspace removes the app.
	OnUninstall(ctx context.Context, teamID string)
}

// Config holds the Socket Mode credentials.
type Config struct {
	BotToken string // xoxb- token for API calls
	AppToken string // xapp- token for Socket Mode
}

// Listener is the Socket Mode event pump.
type Listener struct {
	socket  *socketmode.Client
	handler Handler
	logger  *observability.Logger

	mu        sync.RWMutex
	connected bool
}

// New creates a Listener. The handler receives events after Ack.
func New(cfg Config, handler Handler, logger *observability.Logger) *Listener {
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &Listener{
		socket:  socketmode.New(api, socketmode.OptionDebug(false)),
		handler: handler,
		logger:  logger,
	}
}

// Run drives the connection and the event loop until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	go l.loop(ctx)
	return l.socket.RunContext(ctx)
}

// Connected reports whether the Socket Mode connection is up. Used by the
// health endpoint.
func (l *Listener) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

func (l *Listener) setConnected(up bool) {
	l.mu.Lock()
	l.connected = up
	l.mu.Unlock()
}

func (l *Listener) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-l.socket.Events:
			if !ok {
				return
			}
			switch event.Type {
			case socketmode.EventTypeConnecting:
				l.logger.Debug(ctx, "socket mode connecting")

			case socketmode.EventTypeConnected:
				l.logger.Info(ctx, "socket mode connected")
				l.setConnected(true)

			case socketmode.EventTypeConnectionError:
				l.logger.Warn(ctx, "socket mode connection error", "detail", event.Data)
				l.setConnected(false)

			case socketmode.EventTypeDisconnect:
				l.setConnected(false)

			case socketmode.EventTypeEventsAPI:
				l.handleEventsAPI(ctx, event)

			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				// Not used; ack so Slack stops redelivering.
				if event.Request != nil {
					l.socket.Ack(*event.Request)
				}
			}
		}
	}
}

func (l *Listener) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		l.logger.Warn(ctx, "unexpected socket mode payload", "type", event.Type)
		if event.Request != nil {
			l.socket.Ack(*event.Request)
		}
		return
	}
	// Ack first: Slack redelivers unacked events, and routing may be slow.
	if event.Request != nil {
		l.socket.Ack(*event.Request)
	}

	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	teamID := apiEvent.TeamID

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		l.handler.OnMention(ctx, teamID, ev.Channel, ev.User, stripMentions(ev.Text))

	case *slackevents.MessageEvent:
		// Subtypes are edits, joins, and other non-content noise.
		if ev.SubType != "" || ev.BotID != "" || ev.User == "" {
			return
		}
		if ev.ChannelType == "im" || ev.ChannelType == "mpim" {
			return
		}
		ts, err := parseTimestamp(ev.TimeStamp)
		if err != nil {
			ts = time.Now()
		}
		l.handler.OnMessage(ctx, teamID, ev.Channel, models.Message{
			UserID:    ev.User,
			Text:      ev.Text,
			Timestamp: ts,
			ThreadTS:  ev.ThreadTimeStamp,
		})

	case *slackevents.MemberJoinedChannelEvent:
		l.handler.OnMemberJoined(ctx, teamID, ev.Channel, ev.User)

	case *slackevents.AppUninstalledEvent:
		l.handler.OnUninstall(ctx, teamID)
	}
}

// stripMentions removes <@UXXXX> tokens so command words parse cleanly.
func stripMentions(text string) string {
	for {
		start := strings.Index(text, "<@")
		if start == -1 {
			break
		}
		end := strings.Index(text[start:], ">")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}
	return strings.TrimSpace(text)
}

func parseTimestamp(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	secs, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var micros int64
	if frac != "" {
		if micros, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(secs, micros*int64(time.Microsecond)), nil
}
