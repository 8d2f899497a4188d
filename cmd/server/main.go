package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/vitalbridge/whoopsync/internal/auth"
	"github.com/vitalbridge/whoopsync/internal/config"
	"github.com/vitalbridge/whoopsync/internal/db"
	"github.com/vitalbridge/whoopsync/internal/httpapi"
	"github.com/vitalbridge/whoopsync/internal/link"
	"github.com/vitalbridge/whoopsync/internal/store"
	"github.com/vitalbridge/whoopsync/internal/syncer"
	"github.com/vitalbridge/whoopsync/internal/whoop"
)

func main() {
	cfg := config.Load()

	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "whoopsync").Logger()

	// Pretty logging for local dev
	if cfg.DevMode() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOpts{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	authURL, tokenURL, err := cfg.OAuthEndpoints()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive oauth endpoints")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.UpstreamClientID,
		ClientSecret: cfg.UpstreamClientSecret,
		RedirectURL:  cfg.UpstreamRedirectURI,
		Scopes: []string{
			"read:recovery", "read:sleep", "read:workout",
			"read:cycles", "read:profile", "offline",
		},
		Endpoint: oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
	}

	// Upstream client with the shared quota pacer
	pacer := whoop.NewPacer(cfg.RateLimitPerMinute, cfg.RateLimitPerDay)
	client := whoop.NewClient(cfg.UpstreamBaseURL, cfg.HTTPTimeout, pacer)

	// Connection layer: token storage, refresh, OAuth handshake
	linkRepo := &link.PGRepo{DB: pool}
	links := link.NewStore(linkRepo, oauthCfg)
	flow := link.NewFlow(linkRepo, links, oauthCfg, client, cfg.OAuthStateTTL)
	go flow.SweepPending(ctx, time.Minute)

	// Data layer and the sync pipeline
	repo := &store.Repository{DB: pool}
	orch := syncer.New(links, client, repo, syncer.Thresholds{
		Recovery: cfg.FreshnessRecovery,
		Sleep:    cfg.FreshnessSleep,
		Cycle:    cfg.FreshnessCycle,
		Workout:  cfg.FreshnessWorkout,
	}, cfg.InitialBackfillDays)

	srv := &httpapi.Server{Flow: flow, Links: links, Syncer: orch}

	jwtCfg := auth.JWTCfg{
		HS256Secret: cfg.JWTHS256Secret,
		DevMode:     cfg.DevMode(),
	}
	rl := httpapi.RateLimitInfo{WindowSeconds: 60, MaxRequests: 600, Burst: 120}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(jwtCfg, rl),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
