package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/lendbook/pkg/config"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// newRouter registers the API routes. Request ids, logging and panic recovery wrap the
// whole router so unmatched paths are logged too.
func newRouter(server *Server, limiter *RateLimiter, corsOrigins []string) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/").Subrouter()
	api.HandleFunc("/api/v1/loans", server.createLoanHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/api/v1/loans/{loan_id}/payments", server.recordPaymentHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/api/v1/loans/{loan_id}/ledger", server.ledgerHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/api/v1/customers/{customer_id}/overview", server.customerOverviewHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/api/v1/customers/{customer_id}/loans", server.customerLoansHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/api/v1/overview", server.globalOverviewHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/account-overview", server.accountOverviewHandler).Methods(http.MethodGet, http.MethodOptions)

	api.Use(mux.CORSMethodMiddleware(api))
	api.Use(corsMiddleware(corsOrigins))
	if limiter != nil {
		api.Use(limiter.Middleware)
	}

	return requestIDMiddleware(loggingMiddleware(recoverMiddleware(router)))
}

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	storage, err := store.Open(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize store")
	}
	defer storage.Close()
	log.Info().Str("driver", cfg.Database.Driver).Msg("Connected to database")

	limiter := NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	defer limiter.Stop()

	server := NewServer(storage)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(server, limiter, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
