package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	sdkmath "cosmossdk.io/math"

	"github.com/lumenyield/aggregator/internal/config"
	"github.com/lumenyield/aggregator/internal/engine"
	"github.com/lumenyield/aggregator/internal/keeper"
	"github.com/lumenyield/aggregator/internal/logger"
	"github.com/lumenyield/aggregator/internal/metrics"
	"github.com/lumenyield/aggregator/internal/oracle"
	"github.com/lumenyield/aggregator/internal/state"
	"github.com/lumenyield/aggregator/internal/types"
	"github.com/lumenyield/aggregator/internal/venue"
	"github.com/lumenyield/aggregator/internal/web"
)

const externalCallTimeout = 30 * time.Second

// main is the entry point for the aggregator.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	log.Info().Str("mode", config.EngineMode).Msg("Aggregator starting...")

	// Initialize database connection. The database carries the event journal
	// and restart checkpoints; without it the engine still runs, it just
	// starts empty and forgets on restart.
	var journal engine.Journal
	var restored *types.EngineSnapshot

	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Warn().Err(err).Msg("Database unavailable, running without durability")
	} else {
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		journal = state.NewJournal()

		snap, err := state.LoadSnapshot()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load persisted engine state")
		}
		restored = snap
	}

	// --- 2. Collaborator Wiring (with Safety Switch) ---
	manifest, err := config.LoadVenueManifest(config.VenuesManifest)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load venue manifest")
	}

	var (
		yieldOracle oracle.YieldOracle
		venues      venue.Directory
		asset       venue.AssetToken
	)

	if config.EngineMode == config.ModeLive {
		log.Warn().Msg("Initializing in LIVE mode. Real venue calls will be made.")
		yieldOracle = oracle.NewHTTPClient(manifest.Oracle.BaseURL, externalCallTimeout)
		endpoints := make(map[types.VenueAddress]string, len(manifest.Venues))
		for _, v := range manifest.Venues {
			if v.Endpoint == "" {
				log.Fatal().Str("venue", v.Address).Msg("Venue has no adapter endpoint, required in live mode")
			}
			endpoints[types.VenueAddress(v.Address)] = v.Endpoint
		}
		venues = venue.NewHTTPDirectory(endpoints, externalCallTimeout)
		asset = venue.NewHTTPAssetToken(config.AssetEndpoint, externalCallTimeout)
	} else {
		log.Info().Msg("Initializing in SIM mode. Venues and custody are in-memory.")
		static := oracle.NewStatic()
		for _, v := range manifest.Venues {
			static.Set(types.VenueAddress(v.Address), v.InitialYieldBps)
		}
		yieldOracle = static
		venues = venue.NewSimDirectory()
		asset = venue.NewSimToken(sdkmath.ZeroInt())
	}

	// --- 3. Create Engine Instance with Dependency Injection ---
	promRegistry := prometheus.NewRegistry()

	eng, err := engine.New(engine.Config{
		Oracle:        yieldOracle,
		Venues:        venues,
		Asset:         asset,
		Journal:       journal,
		Metrics:       metrics.New(promRegistry),
		VaultAccount:  config.VaultAccount,
		AdminAccounts: config.AdminAccounts,
		Params:        config.DefaultEngineParameters,
		Restore:       restored,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	// Seed venues from the manifest on a fresh start. A restored engine keeps
	// its persisted venue set and ignores manifest additions.
	if restored == nil {
		bootstrapAdmin := config.AdminAccounts[0]
		for _, v := range manifest.Venues {
			err := eng.AddVenue(context.Background(), bootstrapAdmin, types.VenueAddress(v.Address), v.InitialYieldBps)
			if err != nil {
				log.Fatal().Err(err).Str("venue", v.Address).Msg("Failed to seed venue from manifest")
			}
		}
		log.Info().Int("venues", len(manifest.Venues)).Msg("Venue registry seeded from manifest")
	}

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, eng, promRegistry)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 5. Start Keeper ---
	var k *keeper.Keeper
	if config.KeeperSchedule != "" {
		k, err = keeper.New(eng)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create keeper")
		}
		if err := k.Register(config.KeeperSchedule); err != nil {
			log.Fatal().Err(err).Msg("Failed to register keeper schedule")
		}
		k.Start()
	} else {
		log.Info().Msg("KEEPER_SCHEDULE not set, rebalancing must be triggered externally")
	}

	// --- 6. Wait for Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	if k != nil {
		k.Stop()
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
