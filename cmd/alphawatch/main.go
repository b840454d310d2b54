package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alphawatch/alphawatch/internal/config"
	"github.com/alphawatch/alphawatch/internal/engine"
	"github.com/alphawatch/alphawatch/internal/httpapi"
	"github.com/alphawatch/alphawatch/internal/ingest"
	"github.com/alphawatch/alphawatch/internal/metrics"
	"github.com/alphawatch/alphawatch/internal/notify"
	"github.com/alphawatch/alphawatch/internal/roster"
	"github.com/alphawatch/alphawatch/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "alphawatch",
	Short: "Real-time confluence detection over tracked alpha wallets",
	Long: `alphawatch ingests webhook notifications for a tracked set of
high-performing wallets, maintains short per-token transaction windows,
and alerts when multiple tracked traders converge on the same token.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook listener and detection pipeline",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&configPath, "config", "config/alphawatch.yaml", "Path to configuration file")
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	windows := store.NewRedisStore(store.Options{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		WindowCap: cfg.Window.Cap,
		Retention: cfg.Window.Retention.Std(),
		OpTimeout: cfg.Window.OpTimeout.Std(),
	}, reg, logger)
	defer windows.Close()

	if err := windows.Ping(ctx); err != nil {
		// Fail-soft: the service starts anyway and degrades to
		// no-detection until the store comes back.
		logger.Warn().Err(err).Msg("window store unreachable at startup")
	}

	rosterMgr := roster.NewManager(roster.Config{
		SourceURL:     cfg.Roster.SourceURL,
		APIKey:        cfg.Roster.APIKey,
		Interval:      cfg.Roster.Interval.Std(),
		WebhookID:     cfg.Roster.WebhookID,
		WebhookAPIKey: cfg.Roster.WebhookAPIKey,
		CallbackURL:   cfg.Roster.CallbackURL,
	}, reg, logger)

	sender := notify.NewTelegramSender(cfg.Notify.TelegramToken)
	dispatcher := notify.NewDispatcher(notify.Config{
		Cooldown:     cfg.Notify.Cooldown.Std(),
		QueueSize:    cfg.Notify.QueueSize,
		GlobalRPS:    cfg.Notify.GlobalRPS,
		GlobalBurst:  cfg.Notify.GlobalBurst,
		PerDestRPS:   cfg.Notify.PerDestRPS,
		PerDestBurst: cfg.Notify.PerDestBurst,
		MaxRetries:   cfg.Notify.MaxRetries,
		RetryBackoff: cfg.Notify.RetryBackoff.Std(),
		Destination:  cfg.Notify.TelegramChatID,
	}, sender, reg, logger)

	pipeline := engine.NewPipeline(
		ingest.NewNormalizer(reg, logger),
		windows,
		rosterMgr,
		dispatcher,
		engine.Params{
			AlphaWindow:        cfg.Rules.AlphaWindow.Std(),
			AlphaMinWallets:    cfg.Rules.AlphaMinWallets,
			FollowWindow:       cfg.Rules.FollowWindow.Std(),
			FollowMinFollowers: cfg.Rules.FollowMinFollowers,
			FollowMinTypes:     cfg.Rules.FollowMinTypes,
			DiverseWindow:      cfg.Rules.DiverseWindow.Std(),
			DiverseMinTypes:    cfg.Rules.DiverseMinTypes,
		},
		reg,
		logger,
	)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
		IdleTimeout:  cfg.HTTP.IdleTimeout.Std(),
	}, pipeline, windows, reg, logger)

	go rosterMgr.Run(ctx)
	go dispatcher.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	return nil
}
