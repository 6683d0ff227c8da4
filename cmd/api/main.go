package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"example.com/clubsignup/internal/api"
	"example.com/clubsignup/internal/config"
	"example.com/clubsignup/internal/domain"
	"example.com/clubsignup/internal/logging"
	"example.com/clubsignup/internal/outbox"
	"example.com/clubsignup/internal/registry"
	httptransport "example.com/clubsignup/internal/transport/http"
	"example.com/clubsignup/web"
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger = logger.With("service", "activity-signup")
	slog.SetDefault(logger)

	seed := registry.DefaultSeed()
	if cfg.SeedFile != "" {
		loaded, err := registry.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			logger.Error("failed to load activities seed", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		seed = loaded
	}

	reg, err := registry.New(seed, registry.WithCapacityEnforcement(cfg.EnforceCapacity))
	if err != nil {
		logger.Error("invalid activities seed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()

	var (
		publisher  domain.EventPublisher = outbox.NoopPublisher{}
		dispatcher *outbox.Dispatcher
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		dispatcher = outbox.NewDispatcher(producer, outbox.DispatcherConfig{
			Topic:        cfg.MembershipTopic,
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			QueueSize:    cfg.OutboxQueueSize,
			MaxRetries:   cfg.OutboxMaxRetries,
			BaseDelay:    cfg.OutboxBaseDelay,
			Logger:       logger.With("component", "outbox"),
		})
		go dispatcher.Start(dispatchCtx)
		publisher = dispatcher
		logger.Info("membership events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.MembershipTopic)
	} else {
		logger.Info("membership events disabled: KAFKA_BROKERS not set")
	}

	service := domain.NewService(reg, publisher)
	handler := api.NewHandler(service)
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Static:         web.Static(),
	})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router, logger)

	logger.Info("activity-signup listening", "address", cfg.HTTPAddress, "activities", len(seed), "enforce_capacity", cfg.EnforceCapacity)
	if err := httptransport.Serve(ctx, server, cfg.ShutdownTimeout); err != nil {
		logger.Error("server error", "error", err)
	}

	cancelDispatch()
	if dispatcher != nil {
		dispatcher.Wait()
	}
	logger.Info("activity-signup stopped")
}
