// Command cachetowerd wires a two-layer (memory -> Redis) cache stack end
// to end, with remote eviction and auto-cleanup extensions attached, and
// exercises it against one demonstration hash-table key. It exists to show
// the whole module composed together; application code embeds the
// cachetower package directly instead of shelling out to this binary.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cachetower/cachetower"
	"github.com/cachetower/cachetower/extensions/autocleanup"
	"github.com/cachetower/cachetower/extensions/remoteeviction"
	"github.com/cachetower/cachetower/internal/config"
	"github.com/cachetower/cachetower/internal/observability"
	"github.com/cachetower/cachetower/layers/localstore"
	"github.com/cachetower/cachetower/layers/memory"
	"github.com/cachetower/cachetower/layers/redisstore"
)

func main() {
	cfg, err := config.LoadConfig()
	logger := config.GetLogger()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		observability.SetLevel(level)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	memLayer := memory.New[string](localstore.New(localstore.WithMaxEntries(10_000)), memory.WithMetricsLabel[string]("memory"))
	redisLayer := redisstore.New[string](redisClient, redisstore.WithMetricsLabel[string]("redis"))
	layers := []cachetower.CacheLayer[string]{memLayer, redisLayer}

	remoteEviction := remoteeviction.New[string](redisClient, []cachetower.CacheLayer[string]{memLayer},
		remoteeviction.WithChannelPrefix[string](cfg.ChannelPrefix),
		remoteeviction.WithFlagTTL[string](cfg.FlagTimeout()),
	)
	cleanup := autocleanup.New[string](cfg.CleanupInterval())

	stack, err := cachetower.NewStack[string](layers, cachetower.WithExtensions[string](remoteEviction, cleanup))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build cache stack")
	}
	defer func() {
		if err := stack.Dispose(); err != nil {
			logger.Warn().Err(err).Msg("error disposing cache stack")
		}
	}()

	metricsServer := observability.NewMetricsServer(cfg.Metrics.Address, cfg.Metrics.Port)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	demo(ctx, logger, stack)
	cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

// demo writes one hash-table entry, then reads back a single element and a
// subset of elements, logging what happened, so an operator starting this
// binary for the first time sees the read-through/write-through behavior in
// action instead of a silent idle process.
func demo(ctx context.Context, logger zerolog.Logger, stack *cachetower.CacheStack[string]) {
	const key = "demo:users"
	expiry := time.Now().Add(5 * time.Minute)

	entry := cachetower.NewCacheSetEntry(map[string]string{
		"1": "alice",
		"2": "bob",
	}, &expiry)
	if err := stack.SetHash(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Msg("demo: SetHash failed")
		return
	}

	value, err := stack.GetValue(ctx, key, "1")
	if err != nil {
		logger.Warn().Err(err).Msg("demo: GetValue failed")
		return
	}
	logger.Info().Str("key", key).Str("elementKey", "1").Str("value", value).Msg("demo: read back element")

	subset, err := stack.GetHashSubset(ctx, key, []string{"1", "2", "3"})
	if err != nil {
		logger.Warn().Err(err).Msg("demo: GetHashSubset failed")
		return
	}
	logger.Info().Int("resolved", len(subset)).Msg("demo: hash subset read")
}
