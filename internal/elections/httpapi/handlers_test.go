package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
)

func answers(ids ...string) []election.Answer {
	out := make([]election.Answer, len(ids))
	for i, id := range ids {
		out[i] = election.Answer{ID: id, Text: id}
	}
	return out
}

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindValidation, appErr.Kind)
	require.Equal(t, field, appErr.Field)
}

func TestValidateBallotShape_SingleChoice(t *testing.T) {
	e := &election.Election{VotingType: election.VotingSingleChoice, Answers: answers("yes", "no", "abstain")}

	require.NoError(t, validateBallotShape(e, submitBallotBody{AnswerID: "yes"}))
	requireValidationField(t, validateBallotShape(e, submitBallotBody{}), "answer_id")
	requireValidationField(t, validateBallotShape(e, submitBallotBody{AnswerID: "maybe"}), "answer_id")
}

func TestValidateBallotShape_MultiChoice(t *testing.T) {
	e := &election.Election{VotingType: election.VotingMultiChoice, Answers: answers("A", "B", "C", "D"), MaxSelections: 2}

	require.NoError(t, validateBallotShape(e, submitBallotBody{SelectedAnswerIDs: []string{"A", "C"}}))
	require.NoError(t, validateBallotShape(e, submitBallotBody{SelectedAnswerIDs: []string{"B"}}))

	requireValidationField(t, validateBallotShape(e, submitBallotBody{}), "selected_answer_ids")
	requireValidationField(t, validateBallotShape(e, submitBallotBody{SelectedAnswerIDs: []string{"A", "B", "C"}}), "selected_answer_ids")
	requireValidationField(t, validateBallotShape(e, submitBallotBody{SelectedAnswerIDs: []string{"A", "A"}}), "selected_answer_ids")
	requireValidationField(t, validateBallotShape(e, submitBallotBody{SelectedAnswerIDs: []string{"A", "Z"}}), "selected_answer_ids")
}

func TestValidateBallotShape_RankedChoice(t *testing.T) {
	e := &election.Election{VotingType: election.VotingRankedChoice, Answers: answers("A", "B", "C", "D")}

	require.NoError(t, validateBallotShape(e, submitBallotBody{RankedAnswers: []string{"C", "A", "B", "D"}}))
	// partial rankings are allowed
	require.NoError(t, validateBallotShape(e, submitBallotBody{RankedAnswers: []string{"B"}}))

	requireValidationField(t, validateBallotShape(e, submitBallotBody{}), "ranked_answers")
	requireValidationField(t, validateBallotShape(e, submitBallotBody{RankedAnswers: []string{"A", "B", "C", "D", "A"}}), "ranked_answers")
	requireValidationField(t, validateBallotShape(e, submitBallotBody{RankedAnswers: []string{"A", "A"}}), "ranked_answers")
	requireValidationField(t, validateBallotShape(e, submitBallotBody{RankedAnswers: []string{"A", "Z"}}), "ranked_answers")
}

func TestValidateBallotShape_CommitteeJustifications(t *testing.T) {
	e := &election.Election{
		VotingType:                   election.VotingNominationCommittee,
		Answers:                      answers("A", "B", "C", "D"),
		RequiresJustification:        true,
		JustificationRequiredForTopN: 3,
	}

	valid := submitBallotBody{
		RankedAnswers: []string{"C", "A", "B"},
		Justifications: []ballot.Justification{
			{CandidateAnswerID: "C", RankPosition: 1, Text: "strongest field record"},
			{CandidateAnswerID: "A", RankPosition: 2, Text: "long-standing organiser"},
			{CandidateAnswerID: "B", RankPosition: 3, Text: "policy depth"},
		},
	}
	require.NoError(t, validateBallotShape(e, valid))

	tooFew := valid
	tooFew.Justifications = valid.Justifications[:2]
	requireValidationField(t, validateBallotShape(e, tooFew), "justifications")

	empty := valid
	empty.Justifications = []ballot.Justification{
		{CandidateAnswerID: "C", RankPosition: 1, Text: ""},
		{CandidateAnswerID: "A", RankPosition: 2, Text: "x"},
		{CandidateAnswerID: "B", RankPosition: 3, Text: "y"},
	}
	requireValidationField(t, validateBallotShape(e, empty), "justifications")

	wrongCandidate := valid
	wrongCandidate.Justifications = []ballot.Justification{
		{CandidateAnswerID: "D", RankPosition: 1, Text: "not in the top three"},
		{CandidateAnswerID: "A", RankPosition: 2, Text: "x"},
		{CandidateAnswerID: "B", RankPosition: 3, Text: "y"},
	}
	requireValidationField(t, validateBallotShape(e, wrongCandidate), "justifications")
}

func TestValidateBallotShape_CommitteeTopNShorterThanRanking(t *testing.T) {
	e := &election.Election{
		VotingType:                   election.VotingNominationCommittee,
		Answers:                      answers("A", "B", "C"),
		JustificationRequiredForTopN: 2,
	}
	body := submitBallotBody{
		RankedAnswers: []string{"B", "C", "A"},
		Justifications: []ballot.Justification{
			{CandidateAnswerID: "B", RankPosition: 1, Text: "first pick"},
			{CandidateAnswerID: "C", RankPosition: 2, Text: "second pick"},
		},
	}
	require.NoError(t, validateBallotShape(e, body))
}
