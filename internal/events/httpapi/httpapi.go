// Package httpapi wires Events' HTTP surface: request token, read own
// status, and the admin reset endpoints.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/events/token"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/httpmw"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/identity"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/ratelimit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/role"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/s2s"
)

// Router builds the Events chi router. verifier and limiter are shared
// collaborators; svc holds the token operations.
func Router(svc *token.Service, verifier identity.Verifier, limiter *ratelimit.Limiter, s2sSecret string, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(httpmw.Metrics("events"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/s2s/v1", func(s2sRoute chi.Router) {
		s2sRoute.Use(s2s.RequireSecret(s2sSecret))
		s2sRoute.Get("/tokens/{hash}/status", tokenStatus(svc))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmw.CorrelationID)
		api.Use(httpmw.Authenticate(verifier, log))

		api.With(httpmw.RateLimit("events", limiter, ratelimit.OpTokenIssuance, log)).
			Post("/token/request", requestToken(svc))

		api.Get("/my-status", myStatus(svc))

		api.With(httpmw.RateLimit("events", limiter, ratelimit.OpAdminReset, log)).
			Post("/admin/reset-election", resetElection(svc, log))
	})

	return r
}

type requestTokenBody struct {
	ElectionID string `json:"election_id"`
}

type requestTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func requestToken(svc *token.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestTokenBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.requestToken", "election_id", "invalid request body"))
			return
		}
		if body.ElectionID == "" {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.requestToken", "election_id", "election_id is required"))
			return
		}

		claims := httpmw.ClaimsFromContext(r.Context())
		correlationID := httpmw.CorrelationIDFromContext(r.Context())

		grant, err := svc.RequestToken(r.Context(), correlationID, claims, body.ElectionID)
		if err != nil {
			apperrors.WriteHTTP(w, nil, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(requestTokenResponse{Token: grant.Plaintext, ExpiresAt: grant.ExpiresAt})
	}
}

type statusResponse struct {
	HasToken  bool      `json:"has_token"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func myStatus(svc *token.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		electionID := r.URL.Query().Get("election_id")
		if electionID == "" {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.myStatus", "election_id", "election_id query parameter is required"))
			return
		}

		claims := httpmw.ClaimsFromContext(r.Context())
		result, err := svc.Status(r.Context(), claims, electionID)
		if err != nil {
			apperrors.WriteHTTP(w, nil, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusResponse{
			HasToken:  result.HasToken,
			Used:      result.Used,
			ExpiresAt: result.ExpiresAt,
		})
	}
}

type tokenStatusResponse struct {
	Outstanding bool `json:"outstanding"`
}

// tokenStatus serves Elections' orphan-sweep S2S probe.
func tokenStatus(svc *token.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := chi.URLParam(r, "hash")
		electionID := r.URL.Query().Get("election_id")
		if hash == "" || electionID == "" {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.tokenStatus", "election_id", "hash and election_id are required"))
			return
		}

		outstanding, err := svc.TokenOutstanding(r.Context(), electionID, hash)
		if err != nil {
			apperrors.WriteHTTP(w, nil, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenStatusResponse{Outstanding: outstanding})
	}
}

type resetElectionBody struct {
	ElectionID string `json:"election_id"`
	Scope      string `json:"scope"`             // "mine" or "all"
	Confirm    string `json:"confirm,omitempty"` // must be "RESET ALL" for scope=all
}

// resetAllConfirmation is the literal phrase a scope=all reset must carry.
const resetAllConfirmation = "RESET ALL"

type resetElectionResponse struct {
	Deleted int64 `json:"deleted"`
}

// resetElection implements both reset scopes: "mine" is open
// to any authenticated member resetting their own token, "all" requires an
// elevated role (the production guardrail is enforced inside ResetAll).
func resetElection(svc *token.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := httpmw.ClaimsFromContext(r.Context())

		var body resetElectionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteHTTP(w, log, apperrors.Validation("httpapi.resetElection", "scope", "invalid request body"))
			return
		}

		correlationID := httpmw.CorrelationIDFromContext(r.Context())

		var deleted int64
		var err error
		switch body.Scope {
		case "mine":
			if body.ElectionID == "" {
				apperrors.WriteHTTP(w, log, apperrors.Validation("httpapi.resetElection", "election_id", "election_id is required for scope=mine"))
				return
			}
			deleted, err = svc.ResetMine(r.Context(), correlationID, claims, body.ElectionID)
		case "all":
			if !role.AdmitsAny(claims.Roles, role.Admin, role.EventManager) {
				apperrors.WriteHTTP(w, log, apperrors.New(apperrors.KindForbidden, "httpapi.resetElection", "caller may not perform a scope=all reset"))
				return
			}
			if body.Confirm != resetAllConfirmation {
				apperrors.WriteHTTP(w, log, apperrors.Validation("httpapi.resetElection", "confirm", "scope=all requires confirm: \"RESET ALL\""))
				return
			}
			deleted, err = svc.ResetAll(r.Context(), correlationID, claims)
		default:
			apperrors.WriteHTTP(w, log, apperrors.Validation("httpapi.resetElection", "scope", "scope must be 'mine' or 'all'"))
			return
		}
		if err != nil {
			apperrors.WriteHTTP(w, log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resetElectionResponse{Deleted: deleted})
	}
}
