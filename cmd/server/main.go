// Command server runs the matching engine behind the HTTP order API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/erain9/deepmatch/config"
	"github.com/erain9/deepmatch/pkg/backend/memory"
	"github.com/erain9/deepmatch/pkg/backend/redis"
	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/db/queue"
	"github.com/erain9/deepmatch/pkg/logging"
	"github.com/erain9/deepmatch/pkg/messaging/kafka"
	"github.com/erain9/deepmatch/pkg/otel"
	"github.com/erain9/deepmatch/pkg/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Setup(logging.Config{
		Level:  cfg.Server.LogLevel,
		Pretty: cfg.Server.LogFormat == "pretty",
		Output: os.Stdout,
	})
	logger := zlog.Logger
	ctx := logger.WithContext(context.Background())

	// Initialize OpenTelemetry
	cleanup, err := otel.Init(otel.Config{
		ServiceVersion:   "1.0.0",
		Endpoint:         cfg.Otel.Endpoint,
		CollectorEnabled: cfg.Otel.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()
	if err := otel.StartRuntimeMetrics(); err != nil {
		logger.Warn().Err(err).Msg("Runtime metrics unavailable")
	}

	custodian, err := buildCustodian(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize balance backend")
	}

	opts := []server.ManagerOption{}
	if cfg.Kafka.Enabled {
		sender, err := queue.NewQueueMessageSender()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect Kafka producer")
		}
		opts = append(opts, server.WithMessageSender(sender))

		// The consumer is for developer purposes; it pretty prints the
		// order events flowing through the queue.
		consumer, err := kafka.SetupConsumer(ctx, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Kafka consumer unavailable")
		} else {
			defer consumer.Close()
		}
	}

	manager := server.NewMarketManager(custodian, opts...)
	defer manager.Close()

	for _, m := range cfg.Markets {
		mc, err := parseMarketConfig(m)
		if err != nil {
			logger.Fatal().Err(err).Str("market", m.Name).Msg("Invalid market configuration")
		}
		if _, err := manager.CreateMarket(ctx, mc); err != nil {
			logger.Fatal().Err(err).Str("market", m.Name).Msg("Failed to create market")
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: server.NewHTTPService(manager).Router(),
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Server shutdown complete")
}

func buildCustodian(cfg *config.Config, logger zerolog.Logger) (core.Custodian, error) {
	switch cfg.Backend {
	case "redis":
		redis.SetDefaultRedisOptions(&redis.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		client := redis.GetRedisClient()
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis balance backend")
		return redis.NewCustodian(client, cfg.Redis.Prefix, nil), nil
	default:
		logger.Info().Msg("Using in-memory balance backend")
		return memory.NewCustodian(), nil
	}
}

func parseMarketConfig(m config.MarketConfig) (server.MarketConfig, error) {
	out := server.MarketConfig{
		Name:       m.Name,
		BaseAsset:  m.BaseAsset,
		QuoteAsset: m.QuoteAsset,
	}
	var err error
	if out.TickSize, err = server.ParseScaled(m.TickSize); err != nil {
		return out, err
	}
	if out.LotSize, err = server.ParseScaled(m.LotSize); err != nil {
		return out, err
	}
	if m.TakerFeeRate != "" {
		if out.TakerFeeRate, err = server.ParseScaled(m.TakerFeeRate); err != nil {
			return out, err
		}
	}
	if m.MakerRebateRate != "" {
		if out.MakerRebateRate, err = server.ParseScaled(m.MakerRebateRate); err != nil {
			return out, err
		}
	}
	return out, nil
}
