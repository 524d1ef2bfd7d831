// Command elections runs the Elections service: records ballots against
// tokens registered by Events, manages the election lifecycle, and
// computes tallies.
//
// Beyond the HTTP surface this binary drives the scheduler and the
// orphan-token sweep as background loops.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/config"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/httpapi"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/scheduler"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/sweep"
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

	log := logging.New("elections", cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DSN())
	if err != nil {
		log.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.MigrateElections(ctx, pool); err != nil {
		log.Error("run elections migrations", "error", err)
		os.Exit(1)
	}

	verifier := identity.NewHTTPVerifier(cfg.IdentityVerifierURL, cfg.JWKSURL, cfg.SessionMaxAge)
	defer verifier.Stop()

	limiter, err := ratelimit.New(time.Minute, map[ratelimit.Operation]int{
		ratelimit.OpBallot:     cfg.RateLimitBallotPerMinute,
		ratelimit.OpAdminReset: cfg.RateLimitAdminPerMinute,
	})
	if err != nil {
		log.Error("create rate limiter", "error", err)
		os.Exit(1)
	}

	electionStore := election.NewStore(pool)
	ballotStore := ballot.NewStore(pool)
	auditWriter := audit.NewWriter(pool, "elections", log)

	router := httpapi.Router(httpapi.Config{
		Elections:     electionStore,
		Ballots:       ballotStore,
		Verifier:      verifier,
		Limiter:       limiter,
		Audit:         auditWriter,
		S2SSecret:     cfg.S2SSharedSecret,
		AnonymizeSalt: cfg.AnonymizationSalt,
		Log:           log,
	})

	corsOrigins := []string{"*"}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	handler := middleware.Logger(middleware.Recoverer(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Correlation-ID", "X-S2S-Secret"},
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

	sched := scheduler.New(pool, electionStore, auditWriter, clockwork.NewRealClock(), cfg.SchedulerTick, log)
	go sched.Run(ctx)

	eventsProbe := s2s.NewEventsClient(cfg.EventsBaseURL(), cfg.S2SSharedSecret)
	sweeper := sweep.New(ballotStore, eventsProbe, auditWriter, cfg.TokenTTL, log)
	go runSweepLoop(ctx, sweeper, cfg.SchedulerTick, log)

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
		log.Info("elections service listening", "addr", cfg.HTTPAddr)
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

// runSweepLoop drives the orphan-token reconciliation sweep
// at a coarser cadence than the scheduler tick since sweeping is a
// background-hygiene task, not a user-visible deadline.
func runSweepLoop(ctx context.Context, sweeper *sweep.Sweeper, tick time.Duration, log *slog.Logger) {
	interval := tick * 10
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := sweeper.Run(ctx)
			if err != nil {
				log.Error("sweep run failed", "error", err)
				continue
			}
			if reaped > 0 {
				log.Info("swept orphan token hashes", "reaped", reaped)
			}
		}
	}
}
