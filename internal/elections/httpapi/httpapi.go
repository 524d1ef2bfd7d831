// Package httpapi wires Elections' HTTP surface: the S2S-only endpoints
// Events calls, the public election/ballot/results endpoints, and the
// admin lifecycle endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/httpmw"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/identity"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/ratelimit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/s2s"
)

// Config bundles the collaborators the router needs. AnonymizeSalt is the
// secret salt mixed into the post-close member_uid digest.
type Config struct {
	Elections     *election.Store
	Ballots       *ballot.Store
	Verifier      identity.Verifier
	Limiter       *ratelimit.Limiter
	Audit         *audit.Writer
	S2SSecret     string
	AnonymizeSalt string
	Log           *slog.Logger
}

func Router(cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Use(httpmw.Metrics("elections"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/s2s/v1", func(sr chi.Router) {
		sr.Use(s2s.RequireSecret(cfg.S2SSecret))
		sr.Post("/token", registerToken(cfg))
		sr.Get("/elections/{id}/eligibility", s2sEligibility(cfg))
		sr.Post("/reset-all", s2sResetAll(cfg))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmw.CorrelationID)
		api.Use(httpmw.Authenticate(cfg.Verifier, cfg.Log))

		api.Get("/elections", listElections(cfg))
		api.Get("/elections/{id}", getElection(cfg))
		api.Get("/elections/{id}/results", getResults(cfg))

		api.With(httpmw.RateLimit("elections", cfg.Limiter, ratelimit.OpBallot, cfg.Log)).
			Post("/elections/{id}/ballot", submitBallot(cfg))

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(requireManager())
			admin.Get("/audit", listAudit(cfg))

			admin.Post("/elections", createElection(cfg))
			admin.Patch("/elections/{id}", updateElection(cfg))
			admin.Post("/elections/{id}/publish", transitionElection(cfg, "publish"))
			admin.Post("/elections/{id}/pause", transitionElection(cfg, "pause"))
			admin.Post("/elections/{id}/resume", transitionElection(cfg, "resume"))
			admin.Post("/elections/{id}/close", transitionElection(cfg, "close"))
			admin.Post("/elections/{id}/archive", transitionElection(cfg, "archive"))
			admin.Post("/elections/{id}/hide", setHidden(cfg, true))
			admin.Post("/elections/{id}/unhide", setHidden(cfg, false))
			admin.Post("/elections/{id}/anonymize", anonymizeElection(cfg))
		})
	})

	return r
}
