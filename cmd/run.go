package cmd

import (
	"context"
	"fmt"
	"time"

	"studyhall/bot"
	"studyhall/config"
	"studyhall/database"
	"studyhall/domain/interfaces"
	eventbus "studyhall/events"
	"studyhall/infrastructure"
	"studyhall/metrics"
	"studyhall/repository"
	"studyhall/scheduler"
	"studyhall/voice"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()
	log.WithFields(log.Fields{
		"shard_id":    cfg.ShardID,
		"shard_count": cfg.ShardCount,
		"environment": cfg.Environment,
	}).Info("Starting studyhall")

	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// External publisher: NATS when configured, otherwise in-process only.
	var external interfaces.EventPublisher
	var natsClient *infrastructure.NATSClient
	if cfg.NATSServers != "" {
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		publisher := infrastructure.NewNATSEventPublisher(natsClient, cfg.ShardID)
		if err := publisher.EnsureDomainEventStream(); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		external = publisher
	} else {
		log.Info("NATS not configured, domain events stay in-process")
		external = infrastructure.NewNoopEventPublisher()
	}

	bus := eventbus.NewBus(external)
	metrics.ObserveBus(bus)

	uowFactory := repository.NewUnitOfWorkFactory(db, cfg.StartingBalance)

	tracker := voice.NewTracker(uowFactory, bus)
	stopTracker, err := tracker.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start voice tracker: %w", err)
	}
	defer stopTracker()

	// The gateway session has to exist before the scheduler, which talks
	// to Discord through the port, and before the bot, which owns the
	// session lifecycle.
	session, err := bot.NewSession(bot.Config{
		Token:      cfg.DiscordToken,
		ShardID:    cfg.ShardID,
		ShardCount: cfg.ShardCount,
	})
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	sched := scheduler.NewScheduler(&scheduler.Deps{
		UowFactory: uowFactory,
		Discord:    bot.NewDiscordPort(session),
		Bus:        bus,
		Clock:      scheduler.NewClock(),
	}, cfg.ShardID, cfg.ShardCount)
	sched.RegisterVoiceHandlers(bus)
	metrics.RegisterActiveSlots(sched.ActiveSlotCount)

	discordBot, err := bot.New(bot.Config{
		Token:      cfg.DiscordToken,
		ShardID:    cfg.ShardID,
		ShardCount: cfg.ShardCount,
	}, session, uowFactory, sched, tracker)
	if err != nil {
		return fmt.Errorf("failed to initialize discord bot: %w", err)
	}

	// Scheduler starts after the gateway is open so reconciliation and
	// the first spawned slots can reach Discord.
	stopScheduler, err := sched.Start(ctx)
	if err != nil {
		discordBot.Close()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	var stopMetrics func()
	if cfg.MetricsAddr != "" {
		stopMetrics = metrics.Listen(cfg.MetricsAddr)
	}

	log.Info("Studyhall is running")
	<-ctx.Done()

	log.Info("Shutting down")
	if stopMetrics != nil {
		stopMetrics()
	}
	stopScheduler()
	if err := discordBot.Close(); err != nil {
		log.WithError(err).Error("Error closing discord bot")
	}

	// Give the deferred cleanups a bounded window.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded")
	case <-time.After(time.Second):
		log.Info("Shutdown completed")
	}
	return nil
}
