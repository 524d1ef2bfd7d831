package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/tabulate"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/eligibility"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/httpmw"
)

// getResults serves tallies computed on demand from stored ballots.
// Access is management-only, or public once the election
// is closed/archived and not embargoed.
func getResults(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseElectionID(r)
		if err != nil {
			apperrors.WriteHTTP(w, nil, err)
			return
		}

		e, err := cfg.Elections.Get(r.Context(), id)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		claims := httpmw.ClaimsFromContext(r.Context())
		isManager := eligibility.IsManager(claims.Roles)
		if !e.Visible(isManager) {
			apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindNotFound, "httpapi.getResults", "election not found"))
			return
		}

		closedOrArchived := e.Status == election.StatusClosed || e.Status == election.StatusArchived
		if !isManager && (!closedOrArchived || e.ResultsEmbargoed) {
			apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindForbidden, "httpapi.getResults", "results are not yet available for this election"))
			return
		}

		tallyStart := time.Now()
		defer func() {
			httpmw.TabulationDuration.WithLabelValues(e.VotingType).Observe(time.Since(tallyStart).Seconds())
		}()

		if e.VotingType == election.VotingNominationCommittee {
			if !isManager {
				apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindForbidden, "httpapi.getResults", "nomination-committee results are management-only"))
				return
			}
			rows, err := cfg.Ballots.ListCommitteeBallots(r.Context(), id)
			if err != nil {
				apperrors.WriteHTTP(w, cfg.Log, err)
				return
			}
			tallyRows, err := cfg.Ballots.ListForTally(r.Context(), id)
			if err != nil {
				apperrors.WriteHTTP(w, cfg.Log, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ballots":   rows,
				"stv":       tabulate.STV(tallyRows, e.SeatsToFill, e.QuotaType),
				"aggregate": tabulate.CommitteeAuxiliaryReport(tallyRows),
			})
			return
		}

		rows, err := cfg.Ballots.ListForTally(r.Context(), id)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch e.VotingType {
		case election.VotingSingleChoice:
			_ = json.NewEncoder(w).Encode(tabulate.Plurality(rows))
		case election.VotingMultiChoice:
			_ = json.NewEncoder(w).Encode(tabulate.Approval(rows, e.MaxSelections))
		case election.VotingRankedChoice:
			if e.RankedMethod == election.RankedMethodSimple {
				_ = json.NewEncoder(w).Encode(tabulate.Simple(rows, e.SeatsToFill))
				return
			}
			_ = json.NewEncoder(w).Encode(tabulate.STV(rows, e.SeatsToFill, e.QuotaType))
		default:
			apperrors.WriteHTTP(w, cfg.Log, apperrors.New(apperrors.KindInternal, "httpapi.getResults", "unknown voting_type"))
		}
	}
}

func listAudit(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Audit.List(r.Context(), 200)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, apperrors.Wrap(apperrors.KindDatabase, "httpapi.listAudit", "query audit log", err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	}
}
