// Package bootstrap performs the one-time initial population of a
// channel's canvas from pre-existing history.
package bootstrap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jibinmichael/paperforslack/internal/canvas"
	"github.com/jibinmichael/paperforslack/internal/observability"
	"github.com/jibinmichael/paperforslack/internal/platform"
	"github.com/jibinmichael/paperforslack/internal/retry"
	"github.com/jibinmichael/paperforslack/internal/store"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// Config bounds the history import.
type Config struct {
	// Lookback is the trailing window of history to fetch.
	Lookback time.Duration
	// MaxMessages caps the fetch.
	MaxMessages int
	// MinMessages is the minimum filtered count worth summarizing; below
	// it the channel is marked bootstrapped with no document created.
	MinMessages int
}

func (c Config) withDefaults() Config {
	if c.Lookback <= 0 {
		c.Lookback = 14 * 24 * time.Hour
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 1000
	}
	if c.MinMessages <= 0 {
		c.MinMessages = 10
	}
	return c
}

// Importer runs the bootstrap path. It is gated by the per-channel
// bootstrapped flag, which is set before any network call so the
// expensive import can never loop on a channel with access problems.
type Importer struct {
	cfg     Config
	syncer  *canvas.Syncer
	logger  *observability.Logger
	metrics *observability.Metrics
}

// New creates an Importer.
func New(cfg Config, syncer *canvas.Syncer, logger *observability.Logger, metrics *observability.Metrics) *Importer {
	return &Importer{
		cfg:     cfg.withDefaults(),
		syncer:  syncer,
		logger:  logger,
		metrics: metrics,
	}
}

// Run imports history for the channel at most once. The second and later
// calls are no-ops. Errors mark the channel bootstrapped anyway and are
// returned for logging only; regular cycles proceed regardless.
func (i *Importer) Run(ctx context.Context, client platform.Client, st *store.ChannelState) error {
	if !st.MarkBootstrapped() {
		return nil
	}
	key := st.Key()
	i.metrics.BootstrapRuns.Inc()

	oldest := time.Now().Add(-i.cfg.Lookback)
	history, err := client.FetchHistory(ctx, key.ChannelID, oldest, i.cfg.MaxMessages)
	if err != nil {
		i.logger.Warn(ctx, "bootstrap history fetch failed, channel marked bootstrapped",
			"channel", key.String(), "error", err)
		return err
	}

	filtered := i.filter(history, client.BotUserID())
	if len(filtered) < i.cfg.MinMessages {
		i.logger.Info(ctx, "bootstrap skipped, not enough history",
			"channel", key.String(), "messages", len(filtered), "min", i.cfg.MinMessages)
		return nil
	}

	i.resolveNames(ctx, client, filtered)

	i.logger.Info(ctx, "bootstrapping channel from history",
		"channel", key.String(), "messages", len(filtered))
	return i.publish(ctx, client, st, filtered)
}

// publish pushes the imported snapshot through the synchronizer. The
// bootstrapped flag is already set at this point, so a publish dropped on
// a busy channel would lose the import for good; busy is waited out with
// backoff instead. Any other failure goes through the synchronizer's own
// error handling and is not worth repeating here.
func (i *Importer) publish(ctx context.Context, client platform.Client, st *store.ChannelState, msgs []models.Message) error {
	return retry.Do(ctx, retry.Exponential(5, time.Second, 15*time.Second), func() error {
		err := i.syncer.PublishSnapshot(ctx, client, st, msgs, "bootstrap")
		if err != nil && !errors.Is(err, canvas.ErrBusy) {
			return retry.Permanent(err)
		}
		return err
	})
}

// filter drops non-content entries: the bot's own messages and empty
// text. System subtypes are already excluded by the platform client.
func (i *Importer) filter(history []models.Message, botUserID string) []models.Message {
	out := make([]models.Message, 0, len(history))
	for _, msg := range history {
		if msg.UserID == "" || msg.UserID == botUserID {
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// resolveNames fills display names so the summary reads naturally. Lookup
// failures leave the user id in place; the digest is still usable.
func (i *Importer) resolveNames(ctx context.Context, client platform.Client, msgs []models.Message) {
	names := make(map[string]string)
	for idx := range msgs {
		id := msgs[idx].UserID
		if msgs[idx].UserName != "" {
			continue
		}
		name, ok := names[id]
		if !ok {
			resolved, err := client.UserDisplayName(ctx, id)
			if err != nil {
				resolved = id
			}
			name = resolved
			names[id] = name
		}
		msgs[idx].UserName = name
	}
}
