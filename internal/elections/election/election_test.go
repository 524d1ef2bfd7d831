package election_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
)

func baseAnswers(n int) []election.Answer {
	out := make([]election.Answer, n)
	for i := range out {
		out[i] = election.Answer{ID: string(rune('A' + i)), Text: string(rune('A' + i))}
	}
	return out
}

func TestValidate_SingleChoice(t *testing.T) {
	e := &election.Election{
		VotingType:    election.VotingSingleChoice,
		Answers:       baseAnswers(3),
		MaxSelections: 1,
		SeatsToFill:   1,
	}
	require.NoError(t, election.Validate(e))

	e.MaxSelections = 2
	require.Error(t, election.Validate(e))
}

func TestValidate_MultiChoice(t *testing.T) {
	e := &election.Election{
		VotingType:    election.VotingMultiChoice,
		Answers:       baseAnswers(4),
		MaxSelections: 2,
		SeatsToFill:   2,
	}
	require.NoError(t, election.Validate(e))

	e.SeatsToFill = 1
	err := election.Validate(e)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindValidation, appErr.Kind)
}

func TestDefaults_RankedChoice(t *testing.T) {
	e := &election.Election{VotingType: election.VotingRankedChoice}
	e.Defaults()
	require.Equal(t, election.RankedMethodSTV, e.RankedMethod)
	require.Equal(t, election.QuotaDroop, e.QuotaType)

	e2 := &election.Election{VotingType: election.VotingRankedChoice, RankedMethod: election.RankedMethodSimple}
	e2.Defaults()
	require.Equal(t, election.QuotaNone, e2.QuotaType)
}

func TestValidate_RankedChoice(t *testing.T) {
	e := &election.Election{
		VotingType:    election.VotingRankedChoice,
		Answers:       baseAnswers(4),
		SeatsToFill:   2,
		MaxSelections: 4,
	}
	e.Defaults()
	require.NoError(t, election.Validate(e))

	e.SeatsToFill = 4 // must be < |answers|
	require.Error(t, election.Validate(e))
}

func TestValidate_NominationCommittee(t *testing.T) {
	e := &election.Election{
		VotingType:            election.VotingNominationCommittee,
		Answers:               baseAnswers(5),
		Eligibility:           election.EligibilityCommittee,
		PreserveVoterIdentity: true,
		MaxSelections:         5,
		CommitteeMemberUIDs:   []string{"u1", "u2"},
	}
	require.NoError(t, election.Validate(e))

	e.CommitteeMemberUIDs = nil
	require.Error(t, election.Validate(e))
}

func TestValidate_TooFewAnswers(t *testing.T) {
	e := &election.Election{VotingType: election.VotingSingleChoice, Answers: baseAnswers(1), MaxSelections: 1, SeatsToFill: 1}
	require.Error(t, election.Validate(e))
}

func TestValidate_ScheduleOrdering(t *testing.T) {
	start := time.Now()
	end := start.Add(-time.Hour)
	e := &election.Election{
		VotingType: election.VotingSingleChoice, Answers: baseAnswers(2), MaxSelections: 1, SeatsToFill: 1,
		ScheduledStart: &start, ScheduledEnd: &end,
	}
	require.Error(t, election.Validate(e))
}

// Re-validating an already-valid election unchanged is a no-op.
func TestValidate_Idempotence(t *testing.T) {
	e := &election.Election{
		VotingType:    election.VotingMultiChoice,
		Answers:       baseAnswers(4),
		MaxSelections: 2,
		SeatsToFill:   2,
	}
	require.NoError(t, election.Validate(e))
	require.NoError(t, election.Validate(e))
}

func TestVisible_HiddenElection(t *testing.T) {
	e := &election.Election{Hidden: true}
	require.False(t, e.Visible(false))
	require.True(t, e.Visible(true))

	e.Hidden = false
	require.True(t, e.Visible(false))
}

func TestTransition_AllowedEdges(t *testing.T) {
	to, err := election.Transition(election.StatusDraft, "publish")
	require.NoError(t, err)
	require.Equal(t, election.StatusPublished, to)

	to, err = election.Transition(election.StatusPublished, "pause")
	require.NoError(t, err)
	require.Equal(t, election.StatusPaused, to)

	to, err = election.Transition(election.StatusPaused, "resume")
	require.NoError(t, err)
	require.Equal(t, election.StatusPublished, to)

	to, err = election.Transition(election.StatusClosed, "archive")
	require.NoError(t, err)
	require.Equal(t, election.StatusArchived, to)
}

func TestTransition_DisallowedEdges(t *testing.T) {
	_, err := election.Transition(election.StatusArchived, "publish")
	require.Error(t, err)

	_, err = election.Transition(election.StatusDraft, "close")
	require.Error(t, err)
}

func TestStructurallyMutable(t *testing.T) {
	require.True(t, election.StructurallyMutable(election.StatusDraft))
	require.False(t, election.StructurallyMutable(election.StatusPublished))
}

func TestAdmitsTokenOrBallot(t *testing.T) {
	require.True(t, election.AdmitsTokenOrBallot(election.StatusPublished))
	require.False(t, election.AdmitsTokenOrBallot(election.StatusPaused))
	require.False(t, election.AdmitsTokenOrBallot(election.StatusClosed))
}
