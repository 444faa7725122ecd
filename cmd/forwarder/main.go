package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/cache"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/config"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/fetcher"
	httpHandler "github.com/mauriiciiosouzaa/BrotherBot/internal/handler/http"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/messaging"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/metrics"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/store"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("BROTHERBOT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("starting brotherbot")

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("telegram.token (or BOT_TOKEN) is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Open tracking store and apply migrations
	betStore, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open tracking store")
	}
	defer betStore.Close()

	// Result page fetchers
	httpFetcher := fetcher.NewHTTPFetcher(
		fetcher.HTTPFetcherConfig{
			Timeout:   cfg.Fetcher.Timeout,
			MaxBytes:  cfg.Fetcher.MaxBytes,
			UserAgent: cfg.Fetcher.UserAgent,
		},
		logger,
	)

	var pages service.PageFetcher = httpFetcher
	if cfg.Fetcher.Browser {
		browser := fetcher.NewBrowserFetcher(
			fetcher.BrowserFetcherConfig{
				Timeout:   cfg.Fetcher.Timeout,
				Settle:    cfg.Fetcher.BrowserSettle,
				UserAgent: cfg.Fetcher.UserAgent,
			},
			logger,
		)
		defer browser.Close()
		pages = browser
		logger.Info().Msg("rendering result pages in headless Chrome")
	}

	// Optional Redis page cache
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(
			cache.RedisCacheConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				TTL:      cfg.Redis.TTL,
			},
			logger,
		)
		defer redisCache.Close()

		// Test Redis connection
		if err := redisCache.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

		pages = fetcher.NewCachedFetcher(pages, redisCache, logger)
	}

	var search service.Searcher
	if cfg.Fetcher.SearchEnabled && cfg.Fetcher.SearchURL != "" {
		search = fetcher.NewSearchFetcher(cfg.Fetcher.SearchURL, httpFetcher, pages, logger)
	}

	// Settlement event publisher
	var publisher service.Publisher = messaging.NopPublisher{}
	if cfg.Kafka.PublishEnabled {
		kafkaPublisher := messaging.NewKafkaPublisher(
			messaging.KafkaPublisherConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.PublishTopic,
			},
			logger,
		)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	// Telegram bot
	bot, err := telegram.NewBot(cfg.Telegram.Token, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create Telegram bot")
	}
	messenger := telegram.NewMessenger(bot, logger)

	// Tracking service and settlement poller
	tracking := service.NewTrackingService(betStore, m, logger)

	poller := service.NewPoller(
		service.PollerConfig{
			Interval:    cfg.Poller.Interval,
			StartDelay:  cfg.Poller.StartDelay,
			EditDelay:   cfg.Poller.EditDelay,
			MaxBackoff:  cfg.Poller.MaxBackoff,
			GreenMarker: cfg.Markers.Green,
			RedMarker:   cfg.Markers.Red,
		},
		betStore,
		pages,
		search,
		messenger,
		publisher,
		m,
		logger,
	)

	relay, err := telegram.NewRelay(
		telegram.RelayConfig{
			SourceChatID:      cfg.Telegram.SourceChatID,
			SourceUsername:    cfg.Telegram.SourceUsername,
			DestinationChatID: cfg.Telegram.DestinationChatID,
			NotifyChatID:      cfg.Telegram.NotifyChatID,
			Mode:              cfg.Telegram.Mode,
			BotsOnly:          cfg.Telegram.BotsOnly,
			ReplaceFrom:       cfg.Telegram.ReplaceFrom,
			ReplacePattern:    cfg.Telegram.ReplacePattern,
			ReplaceTo:         cfg.Telegram.ReplaceTo,
		},
		bot,
		tracking,
		m,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create relay")
	}

	var wg sync.WaitGroup
	run := func(name string, start func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := start(ctx); err != nil {
				logger.Error().Err(err).Str("worker", name).Msg("worker failed")
			}
		}()
	}

	run("settlement_poller", poller.Run)
	run("telegram_relay", relay.Start)

	// Optional Kafka ingest of externally relayed messages
	if cfg.Kafka.IngestEnabled {
		consumer := messaging.NewKafkaConsumer(
			messaging.KafkaConsumerConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.IngestTopic,
				GroupID: cfg.Kafka.GroupID,
			},
			tracking,
			logger,
		)
		defer consumer.Close()
		run("kafka_consumer", consumer.Start)
	}

	// Initialize HTTP handler
	betsHandler := httpHandler.NewBetsHandler(tracking, logger)

	// Setup HTTP server routes
	mux := http.NewServeMux()

	// Health and monitoring endpoints
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		readyHandler(w, r, tracking)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Register API routes
	betsHandler.RegisterRoutes(mux)

	// / mirrors /health
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		healthHandler(w, r)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start HTTP server in goroutine
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down gracefully...")

	// Cancel context to stop the workers
	cancel()

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// The store closes only after the poller has finished its current bet
	wg.Wait()

	logger.Info().Msg("shutdown complete")
}

// setupLogger configures the logger based on config
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set format
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return log.Logger.With().Str("service", "brotherbot").Logger()
}

// healthHandler returns 200 if service is running
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler returns 200 if the tracking store answers
func readyHandler(w http.ResponseWriter, r *http.Request, tracking *service.TrackingService) {
	if err := tracking.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("store unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
