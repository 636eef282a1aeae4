package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/esrlink/adapters/events"
	"github.com/layer-3/esrlink/internal/logging"
	"github.com/layer-3/esrlink/ports"
	transport "github.com/layer-3/esrlink/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to the relay TOML config")
	flag.Parse()

	cfg, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load relay config")
	}
	logger := logging.InitLogger("linkrelay", cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publisher ports.EventPublisher
	if cfg.RedisURL != "" {
		pub, closeFn, err := newRedisPublisher(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create event publisher")
		}
		defer closeFn()
		publisher = pub
	}

	relay := transport.NewRelay(cfg.Relay, publisher, logger)
	go relay.Run(ctx)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           transport.SetupRouter(relay, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("relay shutdown")
		}
	}()

	logger.Info().Str("addr", cfg.Addr).Bool("events", publisher != nil).Msg("relay started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("relay stopped")
	}
	logger.Info().Msg("relay stopped")
}

func newRedisPublisher(cfg config, logger zerolog.Logger) (ports.EventPublisher, func(), error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logging.NewWatermillLogger(logger),
	)
	if err != nil {
		redisClient.Close()
		return nil, nil, err
	}

	closeFn := func() {
		publisher.Close()
		redisClient.Close()
	}
	return events.NewWatermillPublisher(publisher, cfg.EventPrefix), closeFn, nil
}
