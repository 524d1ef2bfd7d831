// Package ballot implements Elections' ballot recording paths:
// S2S token registration, the member-authenticated path used by
// ranked-choice/committee/newer deployments, and the legacy token-hash path
// retained only for three-option single-choice ballots.
package ballot

import (
	"time"

	"github.com/google/uuid"
)

// Justification is one candidate rationale attached by a committee voter.
type Justification struct {
	CandidateAnswerID string `json:"candidate_answer_id"`
	RankPosition      int    `json:"rank_position"`
	Text              string `json:"justification_text"`
}

// Ballot mirrors one row of elections.ballots, plus any justifications.
type Ballot struct {
	ID                uuid.UUID
	ElectionID        uuid.UUID
	TokenHash         *string
	MemberUID         string
	AnswerID          *string
	SelectedAnswerIDs []string
	RankedAnswers     []string
	Justifications    []Justification
	SubmittedAt       time.Time
}
