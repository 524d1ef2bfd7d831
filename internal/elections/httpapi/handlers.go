package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/eligibility"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/httpmw"
)

// requireManager gates the /api/admin subtree to management roles.
func requireManager() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := httpmw.ClaimsFromContext(r.Context())
			if !eligibility.IsManager(claims.Roles) {
				apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindForbidden, "httpapi.requireManager", "caller does not hold a management role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseElectionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Validation("httpapi.parseElectionID", "id", "election id must be a valid uuid")
	}
	return id, nil
}

func eligibilityInfo(e *election.Election) eligibility.Info {
	return eligibility.Info{
		Status:              e.Status,
		Hidden:              e.Hidden,
		Eligibility:         e.Eligibility,
		CommitteeMemberUIDs: e.CommitteeMemberUIDs,
	}
}

// --- public election reads ---

func listElections(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := httpmw.ClaimsFromContext(r.Context())
		isManager := eligibility.IsManager(claims.Roles)

		all, err := cfg.Elections.List(r.Context(), isManager)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}

		visible := make([]*election.Election, 0, len(all))
		for _, e := range all {
			if e.Visible(isManager) {
				visible = append(visible, e)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(visible)
	}
}

func getElection(cfg Config) http.HandlerFunc {
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
			apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindNotFound, "httpapi.getElection", "election not found"))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e)
	}
}

// --- ballot submission ---

type submitBallotBody struct {
	AnswerID          string   `json:"answer_id,omitempty"`
	SelectedAnswerIDs []string `json:"selected_answer_ids,omitempty"`
	RankedAnswers     []string `json:"ranked_answers,omitempty"`
	Justifications    []ballot.Justification `json:"justifications,omitempty"`
	Token             string   `json:"token,omitempty"`
}

// submitBallot dispatches to the member-authenticated path or the legacy
// token-hash path.
func submitBallot(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		electionID, err := parseElectionID(r)
		if err != nil {
			apperrors.WriteHTTP(w, nil, err)
			return
		}

		e, err := cfg.Elections.Get(r.Context(), electionID)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}
		if !election.AdmitsTokenOrBallot(e.Status) {
			apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindForbidden, "httpapi.submitBallot", "election is not accepting ballots"))
			return
		}

		var body submitBallotBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.submitBallot", "body", "invalid request body"))
			return
		}

		if body.Token != "" {
			submitTokenBallot(cfg, w, r, e, body)
			return
		}
		submitMemberBallot(cfg, w, r, e, body)
	}
}

// submitTokenBallot is the legacy path.
func submitTokenBallot(cfg Config, w http.ResponseWriter, r *http.Request, e *election.Election, body submitBallotBody) {
	if e.VotingType != election.VotingSingleChoice || len(e.Answers) != 3 {
		apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindForbidden, "httpapi.submitTokenBallot", "token-hash ballots are only accepted for three-option single-choice elections"))
		return
	}
	if body.AnswerID == "" {
		apperrors.WriteHTTP(w, nil, apperrors.Validation("httpapi.submitTokenBallot", "answer_id", "answer_id is required"))
		return
	}

	// The plaintext token never touches storage or logs; only its digest
	// is compared against the registered hashes.
	sum := sha256.Sum256([]byte(body.Token))
	tokenHash := hex.EncodeToString(sum[:])

	err := cfg.Ballots.InsertTokenBallot(r.Context(), e.ID, tokenHash, body.AnswerID)
	auditBallot(cfg, r, e.ID.String(), "token_hash", err)
	if err != nil {
		apperrors.WriteHTTP(w, cfg.Log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// submitMemberBallot is the member-authenticated path used for every
// voting_type.
func submitMemberBallot(cfg Config, w http.ResponseWriter, r *http.Request, e *election.Election, body submitBallotBody) {
	claims := httpmw.ClaimsFromContext(r.Context())
	caller := eligibility.Caller{MemberUID: claims.SubjectID, IsMember: claims.IsMember, Roles: claims.Roles}
	if err := eligibility.Check(eligibilityInfo(e), caller); err != nil {
		apperrors.WriteHTTP(w, nil, err)
		return
	}

	if e.VotingType != election.VotingNominationCommittee {
		voted, err := cfg.Ballots.HasVoted(r.Context(), e.ID, claims.SubjectID)
		if err != nil {
			apperrors.WriteHTTP(w, cfg.Log, err)
			return
		}
		if voted {
			apperrors.WriteHTTP(w, nil, apperrors.New(apperrors.KindAlreadyVoted, "httpapi.submitMemberBallot", "member has already voted in this election"))
			return
		}
	}

	if err := validateBallotShape(e, body); err != nil {
		apperrors.WriteHTTP(w, nil, err)
		return
	}

	b := &ballot.Ballot{
		ElectionID:        e.ID,
		MemberUID:         claims.SubjectID,
		SelectedAnswerIDs: body.SelectedAnswerIDs,
		RankedAnswers:     body.RankedAnswers,
		Justifications:    body.Justifications,
	}
	if body.AnswerID != "" {
		answerID := body.AnswerID
		b.AnswerID = &answerID
	}

	err := cfg.Ballots.InsertMemberBallot(r.Context(), b)
	auditBallot(cfg, r, e.ID.String(), "member", err)
	if err != nil {
		apperrors.WriteHTTP(w, cfg.Log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func validateBallotShape(e *election.Election, body submitBallotBody) error {
	declared := make(map[string]bool, len(e.Answers))
	for _, a := range e.Answers {
		declared[a.ID] = true
	}

	switch e.VotingType {
	case election.VotingSingleChoice:
		if body.AnswerID == "" {
			return apperrors.Validation("httpapi.validateBallotShape", "answer_id", "answer_id is required")
		}
		if !declared[body.AnswerID] {
			return apperrors.Validation("httpapi.validateBallotShape", "answer_id", "answer_id is not a declared answer")
		}
	case election.VotingMultiChoice:
		// set size between 1 and max_selections, each a declared answer.
		if len(body.SelectedAnswerIDs) == 0 || len(body.SelectedAnswerIDs) > e.MaxSelections {
			return apperrors.Validation("httpapi.validateBallotShape", "selected_answer_ids", "selected_answer_ids must contain between 1 and max_selections entries")
		}
		if err := requireDeclaredNoDuplicates(declared, body.SelectedAnswerIDs, "selected_answer_ids"); err != nil {
			return err
		}
	case election.VotingRankedChoice, election.VotingNominationCommittee:
		// every rank references a declared answer, no duplicates; partial
		// rankings allowed up to |answers|.
		if len(body.RankedAnswers) == 0 {
			return apperrors.Validation("httpapi.validateBallotShape", "ranked_answers", "ranked_answers is required")
		}
		if len(body.RankedAnswers) > len(e.Answers) {
			return apperrors.Validation("httpapi.validateBallotShape", "ranked_answers", "ranked_answers may not exceed the number of declared answers")
		}
		if err := requireDeclaredNoDuplicates(declared, body.RankedAnswers, "ranked_answers"); err != nil {
			return err
		}
		if e.VotingType == election.VotingNominationCommittee {
			if err := validateCommitteeJustifications(e, body); err != nil {
				return err
			}
		} else if e.RequiresJustification && len(body.Justifications) == 0 {
			return apperrors.Validation("httpapi.validateBallotShape", "justifications", "this election requires justifications for top-ranked candidates")
		}
	}
	return nil
}

// requireDeclaredNoDuplicates enforces that every id in ids names a declared
// answer and appears at most once.
func requireDeclaredNoDuplicates(declared map[string]bool, ids []string, field string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !declared[id] {
			return apperrors.Validation("httpapi.validateBallotShape", field, "references an answer that is not declared on this election")
		}
		if seen[id] {
			return apperrors.Validation("httpapi.validateBallotShape", field, "contains a duplicate answer")
		}
		seen[id] = true
	}
	return nil
}

// validateCommitteeJustifications requires at least
// justification_required_for_top_n justifications, one per top-ranked
// candidate, each with non-empty text.
func validateCommitteeJustifications(e *election.Election, body submitBallotBody) error {
	required := e.JustificationRequiredForTopN
	if required <= 0 {
		return nil
	}
	if len(body.Justifications) < required {
		return apperrors.Validation("httpapi.validateBallotShape", "justifications", "this election requires a justification for each of its top-ranked candidates")
	}
	topN := body.RankedAnswers
	if len(topN) > required {
		topN = topN[:required]
	}
	byCandidate := make(map[string]string, len(body.Justifications))
	for _, j := range body.Justifications {
		if j.Text == "" {
			return apperrors.Validation("httpapi.validateBallotShape", "justifications", "justification text must not be empty")
		}
		byCandidate[j.CandidateAnswerID] = j.Text
	}
	for _, candidate := range topN {
		if byCandidate[candidate] == "" {
			return apperrors.Validation("httpapi.validateBallotShape", "justifications", "missing justification for a top-ranked candidate")
		}
	}
	return nil
}

func auditBallot(cfg Config, r *http.Request, electionID, path string, err error) {
	rec := auditRecordFor(cfg, r, "submit_ballot", err)
	rec.Details = map[string]any{"election_id": electionID, "path": path}
	_ = cfg.Audit.Write(r.Context(), rec)
}
