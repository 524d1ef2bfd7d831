package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/s2s"
)

// registerToken implements "POST /s2s/v1/token":
// Events registers a freshly minted token hash before handing the
// plaintext to the member.
func registerToken(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body s2s.RegisterTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.registerToken", "body", "invalid request body"))
			return
		}
		if body.ElectionID == "" || body.TokenHash == "" {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.registerToken", "election_id", "election_id and token_hash are required"))
			return
		}

		electionID, err := uuid.Parse(body.ElectionID)
		if err != nil {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.registerToken", "election_id", "election_id must be a valid uuid"))
			return
		}

		e, err := cfg.Elections.Get(r.Context(), electionID)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}
		if e.Status != election.StatusPublished {
			apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindValidation, "httpapi.registerToken", "election is not accepting token registrations"))
			return
		}

		if err := cfg.Ballots.RegisterTokenHash(r.Context(), electionID, body.TokenHash); err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
	}
}

// s2sEligibility implements "GET /s2s/v1/elections/{id}/eligibility":
// the metadata Events needs to run eligibility.Check without reading
// Elections' schema directly.
func s2sEligibility(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.s2sEligibility", "id", "election id must be a valid uuid"))
			return
		}

		e, err := cfg.Elections.Get(r.Context(), id)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s2s.ElectionEligibility{
			ElectionID:          e.ID.String(),
			Status:              e.Status,
			Hidden:              e.Hidden,
			Eligibility:         e.Eligibility,
			CommitteeMemberUIDs: e.CommitteeMemberUIDs,
		})
	}
}

// s2sResetAll implements "POST /s2s/v1/reset-all", the Elections half of
// Events' scope=all reset.
func s2sResetAll(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := cfg.Ballots.ResetAll(r.Context())

		rec := audit.Record{
			Action:  "s2s_reset_all",
			Success: err == nil,
		}
		if err != nil {
			if appErr, ok := apperrors.As(err); ok {
				rec.ReasonCode = string(appErr.Kind)
			}
		}
		_ = cfg.Audit.Write(r.Context(), rec)

		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
	}
}
