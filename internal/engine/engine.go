// Package engine routes workspace events into the summarization pipeline:
// resolving the workspace, buffering messages, triggering synchronization
// cycles, and answering mention commands.
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/jibinmichael/paperforslack/internal/bootstrap"
	"github.com/jibinmichael/paperforslack/internal/canvas"
	"github.com/jibinmichael/paperforslack/internal/directory"
	"github.com/jibinmichael/paperforslack/internal/observability"
	"github.com/jibinmichael/paperforslack/internal/platform"
	"github.com/jibinmichael/paperforslack/internal/scheduler"
	"github.com/jibinmichael/paperforslack/internal/store"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

const helpText = "Hi! I keep this channel's canvas updated with a living summary.\n" +
	"• `@Paper summarize` - refresh the canvas now\n" +
	"• `@Paper help` - show this message\n" +
	"Otherwise just chat: I update the canvas as the conversation moves."

const joinedText = "Thanks for adding me! I'll keep a summary of this channel in its canvas. " +
	"Mention me with `summarize` any time you want it refreshed."

// Engine implements the ingress handler over the directory, store,
// scheduler, importer, and syncer.
type Engine struct {
	dir      *directory.Directory
	store    *store.Store
	syncer   *canvas.Syncer
	importer *bootstrap.Importer
	logger   *observability.Logger
	metrics  *observability.Metrics

	sched *scheduler.Scheduler

	// base is the lifecycle context for work that outlives a single
	// event callback (flush cycles, bootstrap imports).
	base context.Context
}

// New creates an Engine. BindScheduler must be called before Run; the
// scheduler needs the engine's flush function and the engine needs the
// scheduler's triggers.
func New(dir *directory.Directory, st *store.Store, syncer *canvas.Syncer, importer *bootstrap.Importer, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		dir:      dir,
		store:    st,
		syncer:   syncer,
		importer: importer,
		logger:   logger,
		metrics:  metrics,
		base:     context.Background(),
	}
}

// BindScheduler attaches the scheduler after construction.
func (e *Engine) BindScheduler(s *scheduler.Scheduler) {
	e.sched = s
}

// SetBaseContext sets the lifecycle context for background work.
func (e *Engine) SetBaseContext(ctx context.Context) {
	e.base = ctx
}

// Flush is the scheduler's flush function: resolve the workspace and run
// one synchronization cycle.
func (e *Engine) Flush(key models.ChannelKey, reason scheduler.Reason) {
	ctx := e.base
	st, ok := e.store.Get(key)
	if !ok {
		return
	}
	_, client, err := e.dir.Resolve(ctx, key.TeamID)
	if err != nil {
		if errors.Is(err, directory.ErrNotInstalled) {
			// The workspace vanished between append and flush.
			e.store.PurgeTeam(key.TeamID)
			return
		}
		e.logger.Error(ctx, "workspace resolve failed, cycle skipped", "channel", key.String(), "error", err)
		return
	}

	if err := e.syncer.Flush(ctx, client, st, string(reason)); err != nil {
		e.logger.Debug(ctx, "cycle ended with error", "channel", key.String(), "error", err)
	}
	e.updateGauges()
}

// OnMessage buffers an ordinary channel message and lets the scheduler
// decide whether to trigger a cycle.
func (e *Engine) OnMessage(ctx context.Context, teamID, channelID string, msg models.Message) {
	inst, client, err := e.dir.Resolve(ctx, teamID)
	if err != nil {
		// Not installed means no credentials: nothing may touch the
		// platform for this event.
		if !errors.Is(err, directory.ErrNotInstalled) {
			e.logger.Error(ctx, "workspace resolve failed", "team_id", teamID, "error", err)
		}
		return
	}
	if msg.UserID == inst.BotUserID || strings.TrimSpace(msg.Text) == "" {
		return
	}

	key := models.ChannelKey{TeamID: inst.TeamID, ChannelID: channelID}
	st := e.store.GetOrCreate(key)

	if !st.Bootstrapped() {
		go func() {
			if err := e.importer.Run(e.base, client, st); err != nil {
				e.logger.Warn(e.base, "bootstrap failed", "channel", key.String(), "error", err)
			}
		}()
	}

	st.Append(msg)
	e.updateGauges()
	// The flush path can block on the summarizer; keep the event loop free.
	go e.sched.OnAppend(st)
}

// OnMention answers a direct command. The reply is best-effort but always
// attempted, even when the command itself fails.
func (e *Engine) OnMention(ctx context.Context, teamID, channelID, userID, command string) {
	inst, client, err := e.dir.Resolve(ctx, teamID)
	if err != nil {
		if !errors.Is(err, directory.ErrNotInstalled) {
			e.logger.Error(ctx, "workspace resolve failed", "team_id", teamID, "error", err)
		}
		return
	}
	if userID == inst.BotUserID {
		return
	}

	key := models.ChannelKey{TeamID: inst.TeamID, ChannelID: channelID}
	word := ""
	if fields := strings.Fields(command); len(fields) > 0 {
		word = strings.ToLower(fields[0])
	}

	switch word {
	case "summarize", "update", "refresh", "sync":
		e.reply(ctx, client, channelID, "On it! Updating the canvas now.")
		st := e.store.GetOrCreate(key)
		go func() {
			if !st.Bootstrapped() {
				if err := e.importer.Run(e.base, client, st); err != nil {
					e.logger.Warn(e.base, "bootstrap failed", "channel", key.String(), "error", err)
				}
				return
			}
			if st.Len() == 0 {
				e.reply(e.base, client, channelID, "Nothing new since the last update.")
				return
			}
			e.sched.TriggerManual(key)
		}()

	case "help", "":
		e.reply(ctx, client, channelID, helpText)

	default:
		e.reply(ctx, client, channelID, "I didn't catch that. "+helpText)
	}
}

// OnMemberJoined bootstraps the channel when the joining member is the bot
// itself.
func (e *Engine) OnMemberJoined(ctx context.Context, teamID, channelID, userID string) {
	inst, client, err := e.dir.Resolve(ctx, teamID)
	if err != nil {
		if !errors.Is(err, directory.ErrNotInstalled) {
			e.logger.Error(ctx, "workspace resolve failed", "team_id", teamID, "error", err)
		}
		return
	}
	if userID != inst.BotUserID {
		return
	}

	key := models.ChannelKey{TeamID: inst.TeamID, ChannelID: channelID}
	st := e.store.GetOrCreate(key)
	e.logger.Info(ctx, "joined channel", "channel", key.String())
	e.reply(ctx, client, channelID, joinedText)

	go func() {
		if err := e.importer.Run(e.base, client, st); err != nil {
			e.logger.Warn(e.base, "bootstrap failed", "channel", key.String(), "error", err)
		}
	}()
}

// OnUninstall drops the workspace's installation and all of its channel
// state.
func (e *Engine) OnUninstall(ctx context.Context, teamID string) {
	if err := e.dir.Uninstall(ctx, teamID); err != nil {
		e.logger.Error(ctx, "uninstall cleanup failed", "team_id", teamID, "error", err)
	}
	removed := e.store.PurgeTeam(teamID)
	e.updateGauges()
	e.logger.Info(ctx, "workspace uninstalled", "team_id", teamID, "channels_purged", removed)
}

func (e *Engine) reply(ctx context.Context, client platform.Client, channelID, text string) {
	if err := client.PostMessage(ctx, channelID, text); err != nil {
		e.logger.Warn(ctx, "reply failed", "channel_id", channelID, "error", err)
	}
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.BufferedMessages.Set(float64(e.store.BufferedTotal()))
	e.metrics.ActiveChannels.Set(float64(e.store.Len()))
}
