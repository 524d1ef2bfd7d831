// Command events runs the Events service: issues one-time voting tokens
// and registers their hashes with Elections over S2S.
//
// The process stacks middleware.Logger/Recoverer and go-chi/cors around
// the router, serves a healthz endpoint, and shuts down gracefully on
// SIGINT/SIGTERM with a bounded grace period.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/config"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/events/httpapi"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/events/token"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/identity"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/logging"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/ratelimit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/s2s"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadShared()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log := logging.New("events", cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DSN())
	if err != nil {
		log.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.MigrateEvents(ctx, pool); err != nil {
		log.Error("run events migrations", "error", err)
		os.Exit(1)
	}

	verifier := identity.NewHTTPVerifier(cfg.IdentityVerifierURL, cfg.JWKSURL, cfg.SessionMaxAge)
	defer verifier.Stop()

	limiter, err := ratelimit.New(time.Minute, map[ratelimit.Operation]int{
		ratelimit.OpTokenIssuance: cfg.RateLimitTokenPerMinute,
		ratelimit.OpAdminReset:    cfg.RateLimitAdminPerMinute,
	})
	if err != nil {
		log.Error("create rate limiter", "error", err)
		os.Exit(1)
	}

	electionsClient := s2s.NewClient(cfg.ElectionsBaseURL(), cfg.S2SSharedSecret)
	auditWriter := audit.NewWriter(pool, "events", log)

	tokenStore := token.NewStore(pool)
	tokenSvc := token.NewService(tokenStore, electionsClient, auditWriter, cfg, log)

	router := httpapi.Router(tokenSvc, verifier, limiter, cfg.S2SSharedSecret, log)

	corsOrigins := []string{"*"}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	handler := middleware.Logger(middleware.Recoverer(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})(router)))

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		log.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		log.Info("events service listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
