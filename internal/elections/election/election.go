// Package election owns the Elections schema's election entity: its type,
// its validation predicate, and the state machine transitions.
package election

import (
	"time"

	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

const (
	VotingSingleChoice       = "single-choice"
	VotingMultiChoice        = "multi-choice"
	VotingRankedChoice       = "ranked-choice"
	VotingNominationCommittee = "nomination-committee"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusPaused    = "paused"
	StatusClosed    = "closed"
	StatusArchived  = "archived"
)

const (
	EligibilityAll       = "all"
	EligibilityMembers   = "members"
	EligibilityAdmins    = "admins"
	EligibilityCommittee = "committee"
)

const (
	RankedMethodSTV    = "stv"
	RankedMethodSimple = "simple"
)

const (
	QuotaDroop = "droop"
	QuotaHare  = "hare"
	QuotaNone  = "none"
)

// Answer is one ballot option.
type Answer struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Election mirrors one row of elections.elections.
type Election struct {
	ID                            uuid.UUID
	Title                         string
	Question                      string
	Answers                       []Answer
	VotingType                    string
	MaxSelections                 int
	SeatsToFill                   int
	Eligibility                   string
	CommitteeMemberUIDs           []string
	Status                        string
	Hidden                        bool
	ScheduledStart                *time.Time
	ScheduledEnd                  *time.Time
	PreserveVoterIdentity         bool
	RequiresJustification         bool
	JustificationRequiredForTopN int
	RankedMethod                  string
	QuotaType                     string
	RoundNumber                   int
	ParentElectionID              *uuid.UUID
	ResultsEmbargoed              bool
	CreatedBy                     string
	UpdatedBy                     string
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// Visible reports whether caller (non-management) may see this election in
// listings or fetch-by-id.
func (e *Election) Visible(isManager bool) bool {
	if e.Hidden {
		return isManager
	}
	return true
}

// Defaults fills ranked-choice defaults before validation: ranked_method
// defaults to stv with a droop quota, and ranked_method=simple forces
// quota_type to none.
func (e *Election) Defaults() {
	if e.VotingType != VotingRankedChoice {
		return
	}
	if e.RankedMethod == "" {
		e.RankedMethod = RankedMethodSTV
	}
	if e.RankedMethod == RankedMethodSimple {
		e.QuotaType = QuotaNone
		return
	}
	if e.QuotaType == "" {
		e.QuotaType = QuotaDroop
	}
}

// Validate enforces the per-voting-type validation predicate. Callers run
// Defaults first so ranked-choice defaulting happens before the check.
func Validate(e *Election) error {
	if len(e.Answers) < 2 {
		return apperrors.Validation("election.Validate", "answers", "at least two answers are required")
	}
	numAnswers := len(e.Answers)

	switch e.VotingType {
	case VotingSingleChoice:
		if e.MaxSelections != 1 {
			return apperrors.Validation("election.Validate", "max_selections", "single-choice requires max_selections = 1")
		}
		if e.SeatsToFill != 1 {
			return apperrors.Validation("election.Validate", "seats_to_fill", "single-choice requires seats_to_fill = 1")
		}
	case VotingMultiChoice:
		if e.MaxSelections < 1 || e.MaxSelections > numAnswers {
			return apperrors.Validation("election.Validate", "max_selections", "multi-choice requires 1 <= max_selections <= |answers|")
		}
		if e.SeatsToFill != e.MaxSelections {
			return apperrors.Validation("election.Validate", "seats_to_fill", "multi-choice requires seats_to_fill = max_selections")
		}
	case VotingRankedChoice:
		if e.SeatsToFill < 1 || e.SeatsToFill >= numAnswers {
			return apperrors.Validation("election.Validate", "seats_to_fill", "ranked-choice requires 1 <= seats_to_fill < |answers|")
		}
		if e.MaxSelections != numAnswers {
			return apperrors.Validation("election.Validate", "max_selections", "ranked-choice requires max_selections = |answers|")
		}
		if e.RankedMethod != RankedMethodSTV && e.RankedMethod != RankedMethodSimple {
			return apperrors.Validation("election.Validate", "ranked_method", "ranked_method must be 'stv' or 'simple'")
		}
		if e.RankedMethod == RankedMethodSimple && e.QuotaType != QuotaNone {
			return apperrors.Validation("election.Validate", "quota_type", "ranked_method=simple requires quota_type = none")
		}
		if e.RankedMethod == RankedMethodSTV && e.QuotaType != QuotaDroop && e.QuotaType != QuotaHare {
			return apperrors.Validation("election.Validate", "quota_type", "ranked_method=stv requires quota_type 'droop' or 'hare'")
		}
	case VotingNominationCommittee:
		if e.Eligibility != EligibilityCommittee {
			return apperrors.Validation("election.Validate", "eligibility", "nomination-committee requires eligibility = committee")
		}
		if !e.PreserveVoterIdentity {
			return apperrors.Validation("election.Validate", "preserve_voter_identity", "nomination-committee requires preserve_voter_identity = true")
		}
		if e.MaxSelections != numAnswers {
			return apperrors.Validation("election.Validate", "max_selections", "nomination-committee requires max_selections = |answers|")
		}
		if len(e.CommitteeMemberUIDs) == 0 {
			return apperrors.Validation("election.Validate", "committee_member_uids", "nomination-committee requires a non-empty committee")
		}
	default:
		return apperrors.Validation("election.Validate", "voting_type", "unknown voting_type")
	}

	if e.Eligibility == EligibilityCommittee && len(e.CommitteeMemberUIDs) == 0 {
		return apperrors.Validation("election.Validate", "committee_member_uids", "eligibility=committee requires a non-empty committee")
	}

	if e.ScheduledStart != nil && e.ScheduledEnd != nil && !e.ScheduledStart.Before(*e.ScheduledEnd) {
		return apperrors.Validation("election.Validate", "scheduled_end", "scheduled_start must precede scheduled_end")
	}

	return nil
}

// transitions enumerates the allowed state machine edges.
var transitions = map[string]map[string]string{
	StatusDraft:     {"publish": StatusPublished},
	StatusPublished: {"pause": StatusPaused, "close": StatusClosed},
	StatusPaused:    {"resume": StatusPublished, "close": StatusClosed},
	StatusClosed:    {"archive": StatusArchived},
	StatusArchived:  {},
}

// Transition validates and returns the destination status for action from
// the election's current status, without mutating e.
func Transition(status, action string) (string, error) {
	edges, ok := transitions[status]
	if !ok {
		return "", apperrors.New(apperrors.KindInternal, "election.Transition", "unknown status")
	}
	to, ok := edges[action]
	if !ok {
		return "", apperrors.New(apperrors.KindConflict, "election.Transition", "action '"+action+"' is not valid from status '"+status+"'")
	}
	return to, nil
}

// StructurallyMutable reports whether answers/voting_type/seats_to_fill/
// eligibility may change — only while status = draft.
func StructurallyMutable(status string) bool {
	return status == StatusDraft
}

// AdmitsTokenOrBallot reports whether the election's status accepts token
// registration or ballot submission.
func AdmitsTokenOrBallot(status string) bool {
	return status == StatusPublished
}
