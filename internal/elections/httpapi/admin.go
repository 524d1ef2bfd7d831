package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/anonymize"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/httpmw"
)

// auditRecordFor builds the common shape of every admin-surface audit
// record: masked actor, correlation id, reason code on
// failure.
func auditRecordFor(cfg Config, r *http.Request, action string, err error) audit.Record {
	claims := httpmw.ClaimsFromContext(r.Context())
	rec := audit.Record{
		Action:        action,
		Success:       err == nil,
		PerformedBy:   audit.MaskKennitala(claims.KennitalaNormalized),
		CorrelationID: httpmw.CorrelationIDFromContext(r.Context()),
	}
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			rec.ReasonCode = string(appErr.Kind)
		}
	}
	return rec
}

type createElectionBody struct {
	Title                         string            `json:"title"`
	Question                      string            `json:"question"`
	Answers                       []election.Answer `json:"answers"`
	VotingType                    string            `json:"voting_type"`
	MaxSelections                 int               `json:"max_selections"`
	SeatsToFill                   int               `json:"seats_to_fill"`
	Eligibility                   string            `json:"eligibility"`
	CommitteeMemberUIDs           []string          `json:"committee_member_uids,omitempty"`
	Hidden                        bool              `json:"hidden"`
	ScheduledStart                *time.Time        `json:"scheduled_start,omitempty"`
	ScheduledEnd                  *time.Time        `json:"scheduled_end,omitempty"`
	PreserveVoterIdentity         bool              `json:"preserve_voter_identity"`
	RequiresJustification         bool              `json:"requires_justification"`
	JustificationRequiredForTopN  int               `json:"justification_required_for_top_n,omitempty"`
	RankedMethod                  string            `json:"ranked_method,omitempty"`
	QuotaType                     string            `json:"quota_type,omitempty"`
	ResultsEmbargoed              bool              `json:"results_embargoed"`
}

func createElection(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createElectionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.createElection", "body", "invalid request body"))
			return
		}

		claims := httpmw.ClaimsFromContext(r.Context())
		e := &election.Election{
			Title:                        body.Title,
			Question:                     body.Question,
			Answers:                      body.Answers,
			VotingType:                   body.VotingType,
			MaxSelections:                body.MaxSelections,
			SeatsToFill:                  body.SeatsToFill,
			Eligibility:                  body.Eligibility,
			CommitteeMemberUIDs:          body.CommitteeMemberUIDs,
			Hidden:                       body.Hidden,
			ScheduledStart:               body.ScheduledStart,
			ScheduledEnd:                 body.ScheduledEnd,
			PreserveVoterIdentity:        body.PreserveVoterIdentity,
			RequiresJustification:        body.RequiresJustification,
			JustificationRequiredForTopN: body.JustificationRequiredForTopN,
			RankedMethod:                 body.RankedMethod,
			QuotaType:                    body.QuotaType,
			ResultsEmbargoed:             body.ResultsEmbargoed,
			CreatedBy:                    claims.KennitalaNormalized,
			UpdatedBy:                    claims.KennitalaNormalized,
		}
		e.Defaults()

		var err error
		if err = election.Validate(e); err == nil {
			err = cfg.Elections.Create(r.Context(), e)
		}

		rec := auditRecordFor(cfg, r, "create_election", err)
		_ = cfg.Audit.Write(r.Context(), rec)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(e)
	}
}

// updateElection overwrites the mutable surface of an election. Structural
// fields (answers, voting_type, seats_to_fill, eligibility) may only
// change while the election is still a draft.
func updateElection(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseElectionID(r)
		if err != nil {
			apperrors.WriteHTTP(w, nil, err)
			return
		}

		existing, err := cfg.Elections.Get(r.Context(), id)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		var body createElectionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.updateElection", "body", "invalid request body"))
			return
		}

		structuralChange := body.VotingType != existing.VotingType ||
			body.SeatsToFill != existing.SeatsToFill ||
			body.Eligibility != existing.Eligibility ||
			len(body.Answers) != len(existing.Answers)
		for i := 0; !structuralChange && i < len(body.Answers); i++ {
			structuralChange = body.Answers[i] != existing.Answers[i]
		}
		if structuralChange && !election.StructurallyMutable(existing.Status) {
			apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindConflict, "httpapi.updateElection", "structural fields may only change while the election is a draft"))
			return
		}

		claims := httpmw.ClaimsFromContext(r.Context())
		existing.Title = body.Title
		existing.Question = body.Question
		existing.Answers = body.Answers
		existing.VotingType = body.VotingType
		existing.MaxSelections = body.MaxSelections
		existing.SeatsToFill = body.SeatsToFill
		existing.Eligibility = body.Eligibility
		existing.CommitteeMemberUIDs = body.CommitteeMemberUIDs
		existing.Hidden = body.Hidden
		existing.ScheduledStart = body.ScheduledStart
		existing.ScheduledEnd = body.ScheduledEnd
		existing.PreserveVoterIdentity = body.PreserveVoterIdentity
		existing.RequiresJustification = body.RequiresJustification
		existing.JustificationRequiredForTopN = body.JustificationRequiredForTopN
		existing.RankedMethod = body.RankedMethod
		existing.QuotaType = body.QuotaType
		existing.ResultsEmbargoed = body.ResultsEmbargoed
		existing.UpdatedBy = claims.KennitalaNormalized
		existing.Defaults()

		if err = election.Validate(existing); err == nil {
			err = cfg.Elections.Update(r.Context(), existing)
		}

		rec := auditRecordFor(cfg, r, "update_election", err)
		rec.Details = map[string]any{"election_id": id.String()}
		_ = cfg.Audit.Write(r.Context(), rec)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(existing)
	}
}

// transitionElection drives the state machine edges
// (publish/pause/resume/close/archive).
func transitionElection(cfg Config, action string) http.HandlerFunc {
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

		to, err := election.Transition(e.Status, action)
		if err == nil {
			claims := httpmw.ClaimsFromContext(r.Context())
			err = cfg.Elections.SetStatus(r.Context(), id, e.Status, to, claims.KennitalaNormalized)
		}

		rec := auditRecordFor(cfg, r, "transition_"+action, err)
		rec.Details = map[string]any{"election_id": id.String(), "to_status": to}
		_ = cfg.Audit.Write(r.Context(), rec)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func setHidden(cfg Config, hidden bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseElectionID(r)
		if err != nil {
			apperrors.WriteHTTP(w, nil, err)
			return
		}

		claims := httpmw.ClaimsFromContext(r.Context())
		err = cfg.Elections.SetHidden(r.Context(), id, hidden, claims.KennitalaNormalized)

		action := "unhide_election"
		if hidden {
			action = "hide_election"
		}
		rec := auditRecordFor(cfg, r, action, err)
		rec.Details = map[string]any{"election_id": id.String()}
		_ = cfg.Audit.Write(r.Context(), rec)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func anonymizeElection(cfg Config) http.HandlerFunc {
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

		changed, err := anonymize.Run(r.Context(), cfg.Ballots, e, cfg.AnonymizeSalt)

		rec := auditRecordFor(cfg, r, "anonymize_election", err)
		rec.Details = map[string]any{"election_id": id.String(), "ballots_changed": changed}
		_ = cfg.Audit.Write(r.Context(), rec)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"changed": changed})
	}
}
