// Package canvas implements the synchronization state machine that keeps a
// channel's canvas document converged with its summarized activity: at
// most one cycle in flight per channel, at most one document per channel,
// and a degraded plain-message path when canvas writes are denied.
package canvas

import (
	"context"
	"errors"
	"time"

	"github.com/jibinmichael/paperforslack/internal/observability"
	"github.com/jibinmichael/paperforslack/internal/platform"
	"github.com/jibinmichael/paperforslack/internal/retry"
	"github.com/jibinmichael/paperforslack/internal/store"
	"github.com/jibinmichael/paperforslack/internal/summarize"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// Config tunes the synchronizer.
type Config struct {
	// Window bounds how much of the buffer is forwarded to the gateway.
	Window summarize.WindowConfig
	// SummarizeTimeout bounds the gateway call.
	SummarizeTimeout time.Duration
	// WriteTimeout bounds each platform write.
	WriteTimeout time.Duration
	// Timezone is the rendering hint for canvas timestamps.
	Timezone string
}

func (c Config) withDefaults() Config {
	if c.Window.Head <= 0 && c.Window.Tail <= 0 {
		c.Window = summarize.DefaultWindow
	}
	if c.SummarizeTimeout <= 0 {
		c.SummarizeTimeout = 45 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	return c
}

// Syncer runs synchronization cycles. One instance serves all channels;
// per-channel exclusion lives in the ChannelState busy flag.
type Syncer struct {
	cfg     Config
	store   *store.Store
	gateway summarize.Gateway
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates a Syncer.
func New(cfg Config, st *store.Store, gw summarize.Gateway, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Syncer {
	return &Syncer{
		cfg:     cfg.withDefaults(),
		store:   st,
		gateway: gw,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
}

// Flush runs one cycle over the channel's buffered messages. If a cycle is
// already in flight the trigger is dropped; the next natural trigger
// supersedes it. On success exactly the consumed snapshot is removed from
// the buffer, so messages that arrived mid-cycle survive.
func (s *Syncer) Flush(ctx context.Context, client platform.Client, st *store.ChannelState, reason string) error {
	if !st.TryBegin() {
		s.metrics.RecordDropped()
		s.logger.Debug(ctx, "cycle already in flight, trigger dropped", "channel", st.Key().String(), "reason", reason)
		return nil
	}
	defer st.End()

	snapshot := st.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	start := time.Now()
	err := s.publish(ctx, client, st, snapshot, reason)
	if err != nil {
		s.fail(ctx, st, err)
		return err
	}

	st.Reset(len(snapshot))
	st.MarkFlushed(time.Now())
	s.metrics.RecordCycle(reason)
	if s.metrics.CycleDuration != nil {
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// ErrBusy reports that a cycle is already in flight for the channel.
// Scheduler-driven triggers drop on busy because the next trigger
// supersedes them; a one-shot snapshot publish has no next trigger, so
// its caller gets the sentinel and decides whether to try again.
var ErrBusy = errors.New("sync cycle already in flight")

// PublishSnapshot runs a cycle over an externally supplied snapshot (the
// bootstrap history import) without touching the live buffer. Returns
// ErrBusy when the channel's busy flag is held.
func (s *Syncer) PublishSnapshot(ctx context.Context, client platform.Client, st *store.ChannelState, msgs []models.Message, reason string) error {
	if len(msgs) == 0 {
		return nil
	}
	if !st.TryBegin() {
		s.metrics.RecordDropped()
		return ErrBusy
	}
	defer st.End()

	err := s.publish(ctx, client, st, msgs, reason)
	if err != nil {
		s.fail(ctx, st, err)
		return err
	}
	st.MarkFlushed(time.Now())
	s.metrics.RecordCycle(reason)
	return nil
}

// publish is one cycle body: resolve the document, summarize, create or
// replace. The busy flag is held by the caller.
func (s *Syncer) publish(ctx context.Context, client platform.Client, st *store.ChannelState, msgs []models.Message, reason string) error {
	key := st.Key()
	ctx, span := s.tracer.Start(ctx, "canvas.sync",
		"channel", key.String(),
		"reason", reason,
	)
	defer span.End()

	// Resolve platform-side reality before ever creating: a document may
	// exist from a previous process run or manual creation.
	canvasID := st.CanvasID()
	if canvasID == "" {
		var err error
		canvasID, err = s.lookupCanvas(ctx, client, key.ChannelID)
		if err != nil {
			s.tracer.RecordError(span, err)
			return err
		}
		if canvasID != "" {
			st.SetCanvasID(canvasID)
			s.logger.Info(ctx, "adopted existing canvas", "channel", key.String(), "canvas_id", canvasID)
		}
	}

	summary := s.summarize(ctx, msgs)
	body := Render(summary, s.cfg.Timezone)

	if canvasID == "" {
		id, err := s.createCanvas(ctx, client, key.ChannelID, body)
		if err != nil {
			if platform.CodeOf(err) == platform.ErrCodeAccessDenied {
				return s.fallback(ctx, client, key.ChannelID, summary, err)
			}
			s.tracer.RecordError(span, err)
			return err
		}
		st.SetCanvasID(id)
		s.metrics.CanvasCreates.Inc()
		s.logger.Info(ctx, "canvas created", "channel", key.String(), "canvas_id", id, "messages", len(msgs))
		return nil
	}

	if err := s.replaceCanvas(ctx, client, canvasID, body); err != nil {
		if platform.CodeOf(err) == platform.ErrCodeAccessDenied {
			return s.fallback(ctx, client, key.ChannelID, summary, err)
		}
		s.tracer.RecordError(span, err)
		return err
	}
	s.metrics.CanvasUpdates.Inc()

	// Title mutation is best-effort; not every platform version supports
	// it on existing documents.
	if !summary.Degraded {
		wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
		if err := client.RenameCanvas(wctx, canvasID, summary.Title); err != nil {
			s.logger.Debug(ctx, "canvas rename skipped", "channel", key.String(), "error", err)
		}
		cancel()
	}

	s.logger.Info(ctx, "canvas updated", "channel", key.String(), "canvas_id", canvasID, "messages", len(msgs))
	return nil
}

// fail applies the error taxonomy after a cycle body failed. The buffer is
// intentionally left intact on every path here: only a completed cycle
// clears the snapshot it consumed.
func (s *Syncer) fail(ctx context.Context, st *store.ChannelState, err error) {
	key := st.Key()
	switch platform.CodeOf(err) {
	case platform.ErrCodeChannelGone:
		// Terminal: no further work until the bot rejoins and state is
		// recreated from scratch.
		s.store.Purge(key)
		s.logger.Warn(ctx, "channel inaccessible, state purged", "channel", key.String(), "error", err)
	case platform.ErrCodeCanvasStale:
		st.ClearCanvasID()
		s.logger.Warn(ctx, "cached canvas id stale, cleared", "channel", key.String(), "error", err)
	default:
		s.logger.Error(ctx, "sync cycle failed, will retry on next trigger", "channel", key.String(), "error", err)
	}
}

func (s *Syncer) summarize(ctx context.Context, msgs []models.Message) models.Summary {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SummarizeTimeout)
	defer cancel()
	sctx, span := s.tracer.Start(sctx, "summarize.compose")
	defer span.End()

	summary := summarize.Compose(sctx, s.gateway, msgs, s.cfg.Window, s.cfg.Timezone)
	if summary.Degraded {
		s.metrics.SummarizerErrors.Inc()
		s.logger.Warn(ctx, "summarization failed, publishing placeholder", "messages", len(msgs))
	}
	return summary
}

func (s *Syncer) lookupCanvas(ctx context.Context, client platform.Client, channelID string) (string, error) {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return client.ChannelCanvasID(wctx, channelID)
}

func (s *Syncer) createCanvas(ctx context.Context, client platform.Client, channelID, body string) (string, error) {
	var id string
	err := s.withWriteRetry(ctx, func(wctx context.Context) error {
		var err error
		id, err = client.CreateChannelCanvas(wctx, channelID, body)
		return err
	})
	return id, err
}

func (s *Syncer) replaceCanvas(ctx context.Context, client platform.Client, canvasID, body string) error {
	return s.withWriteRetry(ctx, func(wctx context.Context) error {
		return client.ReplaceCanvasBody(wctx, canvasID, body)
	})
}

// withWriteRetry retries transient platform failures; taxonomy errors
// (gone, stale, denied) surface immediately.
func (s *Syncer) withWriteRetry(ctx context.Context, op func(context.Context) error) error {
	return retry.Do(ctx, retry.Exponential(3, 500*time.Millisecond, 5*time.Second), func() error {
		wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
		err := op(wctx)
		if err != nil && !platform.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

// fallback posts the summary as a plain message when the structured
// document path is denied entirely, so the user still receives value.
func (s *Syncer) fallback(ctx context.Context, client platform.Client, channelID string, summary models.Summary, cause error) error {
	s.logger.Warn(ctx, "canvas access denied, falling back to plain message", "channel_id", channelID, "error", cause)

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := client.PostMessage(wctx, channelID, RenderFallback(summary)); err != nil {
		return err
	}
	s.metrics.FallbackPosts.Inc()
	return nil
}
