// Command paper keeps Slack channel canvases updated with living summaries
// of channel activity.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jibinmichael/paperforslack/internal/bootstrap"
	"github.com/jibinmichael/paperforslack/internal/canvas"
	"github.com/jibinmichael/paperforslack/internal/config"
	"github.com/jibinmichael/paperforslack/internal/directory"
	"github.com/jibinmichael/paperforslack/internal/engine"
	"github.com/jibinmichael/paperforslack/internal/ingress"
	"github.com/jibinmichael/paperforslack/internal/observability"
	"github.com/jibinmichael/paperforslack/internal/platform"
	"github.com/jibinmichael/paperforslack/internal/platform/slackapi"
	"github.com/jibinmichael/paperforslack/internal/scheduler"
	"github.com/jibinmichael/paperforslack/internal/store"
	"github.com/jibinmichael/paperforslack/internal/summarize"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paper:", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the command tree. Separated from main to facilitate
// testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "paper",
		Short: "Paper - living channel summaries in Slack canvases",
		Long: `Paper listens to Slack channels, batches their messages, and keeps a
summary of the conversation in each channel's canvas.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Paper service",
		Long: `Start the Paper service: the Socket Mode listener, the batch
scheduler, and the HTTP surface for health, metrics, and the OAuth
install flow. Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with the default config
  paper serve

  # Start with a custom config
  paper serve --config /etc/paper/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "paper.yaml",
		"Path to the configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging")

	return cmd
}

func runServe(configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Observability.LogLevel = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "paper",
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Warn(sctx, "tracer shutdown failed", "error", err)
		}
	}()

	logger.Info(ctx, "starting paper", "version", version, "mode", cfg.Slack.Mode)

	// Installation directory.
	var instStore directory.InstallationStore
	switch cfg.Directory.Backend {
	case "sqlite":
		sqlStore, err := directory.OpenSQLiteStore(cfg.Directory.Path)
		if err != nil {
			return fmt.Errorf("open installation store: %w", err)
		}
		defer sqlStore.Close()
		instStore = sqlStore
	default:
		instStore = directory.NewMemoryStore()
	}
	dir := directory.New(instStore, func(inst models.Installation) platform.Client {
		return slackapi.NewFromInstallation(inst)
	})

	if cfg.Slack.Mode == config.ModeSingle {
		teamID, teamName, botUserID, err := slackapi.Identify(ctx, cfg.Slack.BotToken)
		if err != nil {
			return fmt.Errorf("identify workspace: %w", err)
		}
		err = dir.SeedSingle(ctx, models.Installation{
			TeamID:      teamID,
			TeamName:    teamName,
			BotToken:    cfg.Slack.BotToken,
			BotUserID:   botUserID,
			InstalledAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("seed workspace: %w", err)
		}
		logger.Info(ctx, "workspace ready", "team_id", teamID, "team_name", teamName)
	}

	// Core pipeline.
	channelStore := store.New(cfg.Batch.BufferCap)
	gateway := summarize.NewOpenAIGateway(summarize.OpenAIConfig{
		APIKey:  cfg.Summarizer.APIKey,
		Model:   cfg.Summarizer.Model,
		BaseURL: cfg.Summarizer.BaseURL,
	})
	syncer := canvas.New(canvas.Config{
		Window: summarize.WindowConfig{
			Head:   cfg.Summarizer.WindowHead,
			Tail:   cfg.Summarizer.WindowTail,
			Sample: cfg.Summarizer.WindowSample,
		},
		SummarizeTimeout: cfg.Summarizer.Timeout.Std(),
		Timezone:         cfg.Summarizer.Timezone,
	}, channelStore, gateway, logger, metrics, tracer)
	importer := bootstrap.New(bootstrap.Config{
		Lookback:    cfg.Bootstrap.Lookback.Std(),
		MaxMessages: cfg.Bootstrap.MaxMessages,
		MinMessages: cfg.Bootstrap.MinMessages,
	}, syncer, logger, metrics)

	eng := engine.New(dir, channelStore, syncer, importer, logger, metrics)
	eng.SetBaseContext(ctx)

	sched := scheduler.New(channelStore, scheduler.Config{
		MessageLimit:  cfg.Batch.MessageLimit,
		TimeWindow:    cfg.Batch.TimeWindow.Std(),
		StaleAfter:    cfg.Batch.StaleAfter.Std(),
		SweepInterval: cfg.Batch.SweepInterval.Std(),
		IdleEviction:  cfg.Batch.IdleEviction.Std(),
	}, eng.Flush)
	eng.BindScheduler(sched)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	listener := ingress.New(ingress.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
	}, eng, logger)

	// HTTP surface: health, metrics, and the OAuth install pages.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !listener.Connected() {
			http.Error(w, "socket mode disconnected", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", promhttp.Handler())
	if cfg.Slack.Mode == config.ModeMulti {
		oauth := directory.NewOAuthHandler(directory.OAuthConfig{
			ClientID:     cfg.Slack.ClientID,
			ClientSecret: cfg.Slack.ClientSecret,
			RedirectURL:  cfg.Slack.RedirectURL,
		}, dir, logger)
		mux.HandleFunc("/slack/install", oauth.HandleInstall)
		mux.HandleFunc("/slack/oauth/callback", oauth.HandleCallback)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.Warn(sctx, "http shutdown failed", "error", err)
		}
	}()

	ingressErr := make(chan error, 1)
	go func() {
		ingressErr <- listener.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
		return nil
	case err := <-httpErr:
		return fmt.Errorf("http server: %w", err)
	case err := <-ingressErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("socket mode: %w", err)
		}
		return nil
	}
}
