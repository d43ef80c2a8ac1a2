package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gavelhouse/gavel/internal/auction"
	"github.com/gavelhouse/gavel/internal/auction/broadcast"
	"github.com/gavelhouse/gavel/internal/auction/gateway"
	"github.com/gavelhouse/gavel/internal/auction/orchestrator"
	"github.com/gavelhouse/gavel/internal/auth"
	"github.com/gavelhouse/gavel/internal/httpapi"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal().Msg("JWT_SECRET environment variable is required")
	}
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		log.Fatal().Msg("ADMIN_PASSWORD environment variable is required")
	}
	natsURL := getEnv("NATS_URL", config.NATS.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	clock := clockwork.NewRealClock()

	rounds := auction.NewRoundRepository(pool)
	teams := auction.NewTeamRepository(pool)
	settlement := auction.NewSettlementEngine(pool)
	usage := auction.NewMinigameUsageRepository(pool)
	minigame := auction.NewMinigameGate(rounds, usage, clock)

	publisher, err := broadcast.NewNATSPublisher(natsURL, "auction.events")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer publisher.Close()

	orch := orchestrator.New(rounds, teams, settlement, publisher, clock, orchestrator.Config{
		InactivityTimeout: time.Duration(config.Auction.InactivityTimeoutMinutes * float64(time.Minute)),
	})

	authSvc := auth.NewService(jwtSecret, time.Duration(config.Auth.TokenTTLHours)*time.Hour, clock)

	dispatcher := gateway.NewDispatcher(orch, minigame, clock)
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConsumerConfig.URL = natsURL
	gw, err := gateway.NewService(gatewayConfig, dispatcher, authSvc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway")
	}

	go func() {
		if err := gw.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway failed")
		}
	}()

	api := httpapi.NewServer(rounds, teams, settlement, authSvc, adminPassword)
	server := setupServer(config.Server.Addr, api, gw)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	cancel()

	log.Info().Msg("shutdown complete")
}
