package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/jackpot/internal/anthropic"
	"github.com/MikeSquared-Agency/jackpot/internal/api"
	"github.com/MikeSquared-Agency/jackpot/internal/assembler"
	"github.com/MikeSquared-Agency/jackpot/internal/chat"
	"github.com/MikeSquared-Agency/jackpot/internal/clock"
	"github.com/MikeSquared-Agency/jackpot/internal/config"
	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/dedup"
	"github.com/MikeSquared-Agency/jackpot/internal/hermes"
	"github.com/MikeSquared-Agency/jackpot/internal/intent"
	"github.com/MikeSquared-Agency/jackpot/internal/ledger"
	"github.com/MikeSquared-Agency/jackpot/internal/pool"
	"github.com/MikeSquared-Agency/jackpot/internal/processor"
	"github.com/MikeSquared-Agency/jackpot/internal/slack"
	"github.com/MikeSquared-Agency/jackpot/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: NATS consumers, HTTP API and background sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	logger.Info("jackpot starting", "port", cfg.Port)

	// Database
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("database connected")

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer hermesClient.Close()
	logger.Info("NATS connected", "url", cfg.NatsURL)

	ledgerClient := ledger.NewClient(cfg.LedgerURL, logger)

	contexts := convo.New(clock.Real{}, cfg.ContextIdleTimeout, logger)
	defer contexts.Close()

	pools := pool.New(clock.Real{}, ledgerClient, pool.Options{
		UnitPrice:       cfg.TicketPriceUnits,
		DefaultContract: cfg.PoolContract,
		Retention:       cfg.PoolRetention,
	}, logger)
	defer pools.Close()
	if cfg.PoolContract == "" {
		logger.Warn("POOL_CONTRACT_ADDRESS not set, pool purchases need a contract bound per thread")
	}

	// Language-model guidance is optional; rules alone still classify.
	var guided intent.Strategy
	if cfg.AnthropicAPIKey != "" {
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		guided = intent.NewGuided(llm, ledgerClient, cfg.ClassifyTimeout, logger)
		logger.Info("anthropic client ready", "model", llm.Model())
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, classifying with rules only")
	}
	classifier := intent.New(contexts, logger, guided)

	var messenger chat.Messenger
	if cfg.SlackBotToken != "" {
		messenger = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready")
	} else {
		messenger = chat.NewBusMessenger(hermesClient, hermes.SubjectMessageSend)
		logger.Info("replies published on NATS", "subject", hermes.SubjectMessageSend)
	}

	redelivered := dedup.New(clock.Real{}, dedup.DefaultWindow)

	proc := processor.New(processor.Deps{
		Classifier: classifier,
		Contexts:   contexts,
		Pools:      pools,
		Wallets:    db,
		Assembler:  assembler.New(hermesClient, cfg.AssembleTimeout, logger),
		Lottery:    ledgerClient,
		Audit:      db,
		Events:     hermesClient,
		Messenger:  messenger,
		Dedup:      redelivered,
	}, processor.Options{
		FastPath:    cfg.FastPath,
		TicketPrice: cfg.TicketPriceUnits,
	}, logger)

	if err := hermesClient.Subscribe(hermes.SubjectMessageReceived, proc.HandleInbound); err != nil {
		return fmt.Errorf("subscribe to chat messages: %w", err)
	}
	if err := hermesClient.Subscribe(hermes.SubjectInteraction, proc.HandleInteraction); err != nil {
		return fmt.Errorf("subscribe to chat interactions: %w", err)
	}

	srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
		Messages: proc,
		Pools:    pools,
		Contexts: contexts,
		Wallets:  db,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return contexts.Run(gctx, cfg.ContextSweepInterval) })
	g.Go(func() error { return pools.Run(gctx, cfg.PoolGCInterval) })
	g.Go(func() error { return redelivered.Run(gctx, dedup.DefaultWindow) })

	// Announce registration
	if err := hermesClient.Publish("swarm.agent.jackpot.registered", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"fast_path": cfg.FastPath,
	}); err != nil {
		logger.Warn("failed to publish registration", "error", err)
	}

	logger.Info("jackpot ready", "port", cfg.Port)

	err = g.Wait()
	logger.Info("jackpot stopped")
	return err
}
