package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"papertrader/config"
	"papertrader/internal/adapters/binanceclient"
	"papertrader/internal/adapters/logger"
	"papertrader/internal/adapters/simfeed"
	"papertrader/internal/adapters/sqlite"
	"papertrader/internal/adapters/wsfeed"
	"papertrader/internal/app"
	"papertrader/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize the price feed per FEED_MODE
	prices, streamer, err := buildFeed(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price feed")
		log.Fatalf("FATAL: Failed to initialize price feed: %v", err)
	}

	// 5. Initialize Application Service
	tradingService, err := app.NewPaperTradingService(
		cfg,
		appLogger,
		prices,
		streamer,
		repo, // Pass the concrete implementation, service expects the interface
		repo, // Same repository backs the equity history
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize paper trading service")
		log.Fatalf("FATAL: Failed to initialize paper trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Paper trading service initialized")

	// 6. Start the Service
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Paper trading service exited with error")
		log.Fatalf("FATAL: Paper trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// buildFeed wires the configured price source and optional quote streamer.
// When the exchange is unreachable the simulated feed takes over so the
// account still works offline.
func buildFeed(cfg *config.Config, appLogger ports.Logger) (ports.PriceSource, ports.QuoteStreamer, error) {
	ctx := context.Background()

	if cfg.FeedMode == config.FeedModeSim {
		sim, err := newSimFeed(cfg, appLogger)
		if err != nil {
			return nil, nil, err
		}
		appLogger.Info(ctx, "Using simulated price feed")
		return sim, sim, nil
	}

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Exchange unreachable, falling back to simulated feed", map[string]interface{}{"error": err.Error()})
		sim, simErr := newSimFeed(cfg, appLogger)
		if simErr != nil {
			return nil, nil, simErr
		}
		return sim, sim, nil
	}
	appLogger.Info(ctx, "Binance price feed initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	if cfg.FeedMode == config.FeedModeREST {
		return client, nil, nil
	}

	stream, err := wsfeed.New(wsfeed.Config{
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		return nil, nil, err
	}
	appLogger.Info(ctx, "Websocket quote stream initialized")
	return client, stream, nil
}

func newSimFeed(cfg *config.Config, appLogger ports.Logger) (*simfeed.Feed, error) {
	return simfeed.New(simfeed.Config{
		Logger:      appLogger,
		Seed:        cfg.SimSeed,
		StartPrices: cfg.SimStartPrices(),
		Volatility:  cfg.Volatility,
	})
}
