package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialtel/crm-backend/internal/api"
	"github.com/dialtel/crm-backend/internal/auth"
	"github.com/dialtel/crm-backend/internal/cache"
	"github.com/dialtel/crm-backend/internal/catalog"
	"github.com/dialtel/crm-backend/internal/config"
	"github.com/dialtel/crm-backend/internal/identity"
	"github.com/dialtel/crm-backend/internal/metrics"
	"github.com/dialtel/crm-backend/internal/ranking"
	"github.com/dialtel/crm-backend/internal/scoring"
	"github.com/dialtel/crm-backend/internal/storage"
	"github.com/dialtel/crm-backend/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting dialtel CRM backend server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create record store
	store, dynamoCfg, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize record store")
	}

	// Identity normalizer with optional override file
	names := identity.NewNormalizer(log.Logger)
	if cfg.NameOverridesPath != "" {
		if err := names.LoadOverrides(cfg.NameOverridesPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.NameOverridesPath).Msg("failed to load name overrides")
		}
	}

	// Team roster, seeded with the built-in teams
	teams := identity.NewTeams()
	if cfg.ExtraTeamsPath != "" {
		if err := teams.LoadExtra(cfg.ExtraTeamsPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.ExtraTeamsPath).Msg("failed to load extra teams")
		}
	}

	// Scoring resolver, embedded table plus optional file override
	scores, err := scoring.NewResolver(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load scoring table")
	}
	if cfg.ScoringTablePath != "" {
		if err := scores.LoadFile(cfg.ScoringTablePath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.ScoringTablePath).Msg("failed to load scoring table file")
		}
	}

	// Partition catalog with background refresh
	cat := catalog.New(store, names, dynamoCfg.PartitionPrefix, dynamoCfg.PrimaryPartition(), cfg.CatalogRefresh, log.Logger)
	go cat.Run(ctx)

	// Ranking cache with background pruning
	rankingCache := cache.NewRankingCache(cfg.RankingCacheTTL, log.Logger)
	go rankingCache.Run(ctx)

	// Aggregation engine
	engine := ranking.NewEngine(store, cat, scores, names, teams, rankingCache, ranking.Config{
		Concurrency:  cfg.ScanConcurrency,
		Deadline:     cfg.ScanDeadline,
		RetryBackoff: cfg.RetryBackoff,
	}, log.Logger)

	// Create handlers
	rankingHandler := api.NewRankingHandler(engine, log.Logger)
	adminHandler := api.NewAdminHandler(scores, names, cat, cfg.ScoringTablePath, cfg.NameOverridesPath, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/ranking", api.Instrument("/api/ranking", rankingHandler.GetRanking))
			r.Get("/ranking/teams", api.Instrument("/api/ranking/teams", rankingHandler.GetTeamRanking))

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole("admin"))
				r.Post("/scoring/reload", adminHandler.ReloadScoring)
				r.Post("/identity/reload", adminHandler.ReloadOverrides)
				r.Get("/catalog", adminHandler.GetCatalog)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // aggregations over many partitions can be slow
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background refresh loops
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"crm-backend"}`)
}
