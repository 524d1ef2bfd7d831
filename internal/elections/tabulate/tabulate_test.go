package tabulate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/tabulate"
)

func TestQuota_DroopAndHare(t *testing.T) {
	// V=100, S=3 -> Droop 26, Hare 34.
	require.Equal(t, 26, tabulate.Quota("droop", 100, 3))
	require.Equal(t, 34, tabulate.Quota("hare", 100, 3))
}

func TestPlurality_CountsAndTies(t *testing.T) {
	rows := []ballot.TallyRow{
		{AnswerID: "yes"},
		{AnswerID: "yes"},
		{AnswerID: "no"},
	}
	result := tabulate.Plurality(rows)
	require.Equal(t, map[string]int{"yes": 2, "no": 1}, result.Counts)
	require.Equal(t, []string{"yes"}, result.Winners)
}

func TestPlurality_ReportsTies(t *testing.T) {
	rows := []ballot.TallyRow{{AnswerID: "yes"}, {AnswerID: "no"}}
	result := tabulate.Plurality(rows)
	require.ElementsMatch(t, []string{"yes", "no"}, result.Winners)
}

func TestApproval_TopMaxSelections(t *testing.T) {
	rows := []ballot.TallyRow{
		{SelectedAnswerIDs: []string{"A", "B"}},
		{SelectedAnswerIDs: []string{"A", "B"}},
		{SelectedAnswerIDs: []string{"A", "C"}},
	}
	result := tabulate.Approval(rows, 2)
	require.Equal(t, 3, result.Counts["A"])
	require.Equal(t, []string{"A", "B"}, result.Winners)
}

func TestApproval_TiesAtCutoffAreReported(t *testing.T) {
	rows := []ballot.TallyRow{
		{SelectedAnswerIDs: []string{"A", "B"}},
		{SelectedAnswerIDs: []string{"A", "C"}},
	}
	result := tabulate.Approval(rows, 2)
	require.ElementsMatch(t, []string{"A", "B", "C"}, result.Winners)
}

func TestSimple_TopSeatsNoTransfers(t *testing.T) {
	rows := []ballot.TallyRow{
		{RankedAnswers: []string{"A", "B"}},
		{RankedAnswers: []string{"A", "C"}},
		{RankedAnswers: []string{"B", "A"}},
	}
	result := tabulate.Simple(rows, 1)
	require.Equal(t, []string{"A"}, result.Winners)
	require.Equal(t, 2, result.FirstPreferenceCounts["A"])
}

// buildRankedBallots repeats a full ranking n times.
func buildRankedBallots(n int, ranking ...string) []ballot.TallyRow {
	rows := make([]ballot.TallyRow, n)
	for i := range rows {
		rows[i] = ballot.TallyRow{RankedAnswers: append([]string{}, ranking...)}
	}
	return rows
}

// TestSTV_DroopTieBreakScenario:
// seats_to_fill=2, answers [A,B,C,D], first preferences A:4 B:3 C:2 D:1,
// quota 4. Round 1 elects A (surplus 0). Round 2 eliminates D, transfers
// lift B to 4 and B is elected. Final winners {A, B}.
func TestSTV_DroopTieBreakScenario(t *testing.T) {
	var rows []ballot.TallyRow
	rows = append(rows, buildRankedBallots(4, "A", "B", "C", "D")...)
	rows = append(rows, buildRankedBallots(3, "B", "A", "C", "D")...)
	rows = append(rows, buildRankedBallots(2, "C", "B", "A", "D")...)
	rows = append(rows, buildRankedBallots(1, "D", "B", "A", "C")...)

	result := tabulate.STV(rows, 2, "droop")

	require.Equal(t, 4, result.Quota)
	require.False(t, result.TieUnresolved)
	require.ElementsMatch(t, []string{"A", "B"}, result.Winners)
}

// TestSTV_RoundAccounting verifies weight conservation: the
// sum of every surviving candidate's weight plus the weight that has
// transferred to eliminated/elected candidates never exceeds the initial
// total (no weight is fabricated by a transfer).
func TestSTV_RoundAccounting(t *testing.T) {
	var rows []ballot.TallyRow
	rows = append(rows, buildRankedBallots(4, "A", "B", "C", "D")...)
	rows = append(rows, buildRankedBallots(3, "B", "A", "C", "D")...)
	rows = append(rows, buildRankedBallots(2, "C", "B", "A", "D")...)
	rows = append(rows, buildRankedBallots(1, "D", "B", "A", "C")...)

	result := tabulate.STV(rows, 2, "droop")
	require.NotEmpty(t, result.Rounds)

	initialTotal := float64(len(rows))
	for _, round := range result.Rounds {
		var sum float64
		for _, w := range round.Weights {
			sum += w
		}
		require.LessOrEqual(t, sum, initialTotal+0.0001)
	}
}

func TestSTV_EmptyRankingsExcludedFromV(t *testing.T) {
	rows := []ballot.TallyRow{
		{RankedAnswers: []string{"A", "B"}},
		{}, // no ranking: does not count toward V
	}
	result := tabulate.STV(rows, 1, "droop")
	require.Equal(t, 1, result.Quota) // V=1 (only the non-empty ballot counts) -> floor(1/2)+1 = 1
	require.Equal(t, []string{"A"}, result.Winners)
}

func TestCommitteeAuxiliaryReport_MeanRankAndFirstPlace(t *testing.T) {
	rows := []ballot.TallyRow{
		{RankedAnswers: []string{"A", "B"}},
		{RankedAnswers: []string{"B", "A"}},
	}
	report := tabulate.CommitteeAuxiliaryReport(rows)

	byID := map[string]tabulate.CommitteeCandidateStats{}
	for _, r := range report {
		byID[r.CandidateAnswerID] = r
	}
	require.Equal(t, 1.5, byID["A"].MeanRank)
	require.Equal(t, 1, byID["A"].FirstPlaceVotes)
	require.Equal(t, 1.5, byID["B"].MeanRank)
	require.Equal(t, 1, byID["B"].FirstPlaceVotes)
}
