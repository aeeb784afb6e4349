/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the carbon ledger server: configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags (env vars override defaults)
  2. Initialize the SQLite store and grid intensity resolver
  3. Wire gateway, engine, and rollup over them
  4. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port           HTTP server port (default: 8080)
  -db             SQLite database path (default: carbonledger.db,
                  ":memory:" for in-memory)
  -intensity-api  Base URL of the hourly-CO2 API
  -intensity-ttl  Grid intensity cache TTL (default: 1h)
  -fallback       Path to a YAML intensity fallback table overriding the
                  embedded one
  -redis          Redis address for a shared intensity cache; empty uses
                  the in-process cache

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait for active requests
  (30s timeout), close the database, exit.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/opti100/carbonledger/api"
	"github.com/opti100/carbonledger/emissions"
	"github.com/opti100/carbonledger/grid"
	"github.com/opti100/carbonledger/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", envOr("CARBONLEDGER_DB", "carbonledger.db"), "SQLite database path")
	intensityAPI := flag.String("intensity-api", envOr("CARBONLEDGER_INTENSITY_API", "https://api.hourlyco2.org"), "hourly-CO2 API base URL")
	intensityTTL := flag.Duration("intensity-ttl", grid.DefaultTTL, "grid intensity cache TTL")
	fallbackPath := flag.String("fallback", envOr("CARBONLEDGER_FALLBACK_TABLE", ""), "YAML intensity fallback table path")
	redisAddr := flag.String("redis", envOr("CARBONLEDGER_REDIS", ""), "Redis address for shared intensity cache")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	fallback, err := loadFallback(*fallbackPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load intensity fallback table")
	}

	var cache grid.IntensityCache
	if *redisAddr != "" {
		cache = grid.NewRedisCache(redis.NewClient(&redis.Options{Addr: *redisAddr}))
		log.Info().Str("addr", *redisAddr).Msg("using Redis intensity cache")
	} else {
		cache = grid.NewMemoryCache()
	}

	resolver := grid.NewResolver(
		cache,
		grid.NewHTTPSeriesClient(*intensityAPI),
		fallback,
		log.With().Str("component", "grid").Logger(),
		grid.WithTTL(*intensityTTL),
	)

	registry := emissions.NewRegistry(store)
	locks := emissions.NewPeriodLocks()
	metrics := emissions.NewMetrics()
	calc := emissions.NewFactorCalculator()

	gateway := emissions.NewGateway(store, registry, calc, resolver, locks, metrics,
		log.With().Str("component", "gateway").Logger())
	engine := emissions.NewEngine(store, registry, calc, resolver, locks, metrics,
		log.With().Str("component", "engine").Logger())
	rollup := emissions.NewRollup(engine,
		log.With().Str("component", "rollup").Logger())

	handler := api.NewHandler(store, gateway, engine, rollup, registry)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}

func loadFallback(path string) (*grid.FallbackTable, error) {
	if path == "" {
		return grid.NewFallbackTable()
	}
	return grid.LoadFallbackTable(path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
