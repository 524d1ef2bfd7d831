// Package tabulate computes election results on demand from stored ballots:
// plurality, approval, STV with Droop/Hare quota and fractional Gregory
// surplus transfer, the simple ranked-choice variant, and the
// nomination-committee auxiliary report.
package tabulate

import (
	"math"
	"sort"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
)

// Quota computes the election quota: Droop
// ⌊V/(S+1)⌋+1, Hare ⌈V/S⌉. v is the count of non-empty ballots, s is
// seats_to_fill.
func Quota(quotaType string, v, s int) int {
	if quotaType == "hare" {
		return int(math.Ceil(float64(v) / float64(s)))
	}
	return v/(s+1) + 1
}

// PluralityResult is the outcome of single-choice tabulation.
type PluralityResult struct {
	Counts  map[string]int
	Winners []string // >1 entry means a reported, unbroken tie
}

// Plurality counts ballots per answer_id; the winner is the maximum count,
// ties reported rather than broken.
func Plurality(rows []ballot.TallyRow) PluralityResult {
	counts := map[string]int{}
	for _, r := range rows {
		if r.AnswerID != "" {
			counts[r.AnswerID]++
		}
	}
	return PluralityResult{Counts: counts, Winners: topByCount(counts, 1)}
}

// ApprovalResult is the outcome of multi-choice tabulation.
type ApprovalResult struct {
	Counts  map[string]int
	Winners []string
}

// Approval counts occurrences of each answer_id across all submissions; the
// top maxSelections are winners, subject to ties at the cutoff.
func Approval(rows []ballot.TallyRow, maxSelections int) ApprovalResult {
	counts := map[string]int{}
	for _, r := range rows {
		for _, a := range r.SelectedAnswerIDs {
			counts[a]++
		}
	}
	return ApprovalResult{Counts: counts, Winners: topByCount(counts, maxSelections)}
}

// topByCount returns the candidates with the n highest counts. When the
// n-th and (n+1)-th candidates tie, both (and any further ties) are
// included rather than arbitrarily broken.
func topByCount(counts map[string]int, n int) []string {
	type entry struct {
		id    string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for id, c := range counts {
		entries = append(entries, entry{id, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].id < entries[j].id
	})
	if n > len(entries) {
		n = len(entries)
	}
	if n == 0 {
		return nil
	}
	cutoff := entries[n-1].count
	var winners []string
	for _, e := range entries {
		if e.count >= cutoff {
			winners = append(winners, e.id)
		}
	}
	return winners
}

// Transfer records one weighted movement of ballots between candidates
// during an STV round.
type Transfer struct {
	FromCandidate string
	ToCandidate   string
	Weight        float64
}

// Round is one STV iteration's public-facing account.
type Round struct {
	SurvivingCandidates []string
	Weights             map[string]float64
	Transfers           []Transfer
	Action              string // "elect:<id>", "eliminate:<id>", "tie_unresolved"
}

// STVResult is the outcome of ranked-choice STV tabulation.
type STVResult struct {
	Quota         int
	Rounds        []Round
	Winners       []string
	TieUnresolved bool
}

type stvBallot struct {
	ranking []string
	weight  float64
	next    int // index into ranking of the next candidate to consider
}

// STV runs the fractional-Gregory single transferable vote count. Only
// ballots with at least one ranked answer count toward V.
func STV(rows []ballot.TallyRow, seats int, quotaType string) STVResult {
	var ballots []*stvBallot
	candidateSet := map[string]bool{}
	for _, r := range rows {
		if len(r.RankedAnswers) == 0 {
			continue
		}
		b := &stvBallot{ranking: r.RankedAnswers, weight: 1.0}
		ballots = append(ballots, b)
		for _, c := range r.RankedAnswers {
			candidateSet[c] = true
		}
	}

	quota := Quota(quotaType, len(ballots), seats)

	remaining := make(map[string]bool, len(candidateSet))
	for c := range candidateSet {
		remaining[c] = true
	}

	result := STVResult{Quota: quota}
	var winners []string
	// standing from the preceding round, used for the tie-break policy:
	// "prefer the candidate whose standing was higher in the preceding round"
	prevStanding := map[string]float64{}

	for len(winners) < seats && len(remaining) > 0 {
		if len(remaining) <= seats-len(winners) {
			// only S candidates remain: elect them all without a further round.
			for c := range remaining {
				winners = append(winners, c)
			}
			break
		}

		weights := currentWeights(ballots, remaining)
		round := Round{Weights: weights}
		for c := range remaining {
			round.SurvivingCandidates = append(round.SurvivingCandidates, c)
		}
		sort.Strings(round.SurvivingCandidates)

		electedThisRound, tie := candidateMeetingQuota(weights, quota, prevStanding)
		if tie {
			round.Action = "tie_unresolved"
			result.Rounds = append(result.Rounds, round)
			result.TieUnresolved = true
			result.Winners = winners
			return result
		}

		if electedThisRound != "" {
			round.Action = "elect:" + electedThisRound
			surplus := weights[electedThisRound] - float64(quota)
			transfers := transferSurplus(ballots, electedThisRound, surplus, weights[electedThisRound], remaining)
			round.Transfers = transfers
			winners = append(winners, electedThisRound)
			delete(remaining, electedThisRound)
		} else {
			toEliminate, tie := candidateWithSmallestWeight(weights, prevStanding)
			if tie {
				round.Action = "tie_unresolved"
				result.Rounds = append(result.Rounds, round)
				result.TieUnresolved = true
				result.Winners = winners
				return result
			}
			round.Action = "eliminate:" + toEliminate
			transfers := transferAll(ballots, toEliminate, remaining)
			round.Transfers = transfers
			delete(remaining, toEliminate)
		}

		prevStanding = weights
		result.Rounds = append(result.Rounds, round)
	}

	result.Winners = winners
	return result
}

// currentWeights sums each remaining candidate's ballot weight by scanning
// every ballot's current (next undropped, remaining) preference.
func currentWeights(ballots []*stvBallot, remaining map[string]bool) map[string]float64 {
	weights := map[string]float64{}
	for c := range remaining {
		weights[c] = 0
	}
	for _, b := range ballots {
		if c, ok := currentPreference(b, remaining); ok {
			weights[c] += b.weight
		}
	}
	return weights
}

// currentPreference advances b.next past any candidate no longer remaining
// and returns the first remaining preference, if any.
func currentPreference(b *stvBallot, remaining map[string]bool) (string, bool) {
	for b.next < len(b.ranking) {
		c := b.ranking[b.next]
		if remaining[c] {
			return c, true
		}
		b.next++
	}
	return "", false
}

// candidateMeetingQuota returns the candidate meeting or exceeding quota
// with the highest weight. Ties are broken by preceding-round standing;
// an unresolved tie is reported rather than broken arbitrarily.
func candidateMeetingQuota(weights map[string]float64, quota int, prevStanding map[string]float64) (string, bool) {
	var atOrAboveQuota []string
	for c, w := range weights {
		if w >= float64(quota) {
			atOrAboveQuota = append(atOrAboveQuota, c)
		}
	}
	if len(atOrAboveQuota) == 0 {
		return "", false
	}
	return pickByWeightThenStanding(atOrAboveQuota, weights, prevStanding, true)
}

func candidateWithSmallestWeight(weights map[string]float64, prevStanding map[string]float64) (string, bool) {
	var minWeight float64 = math.MaxFloat64
	for _, w := range weights {
		if w < minWeight {
			minWeight = w
		}
	}
	var lowest []string
	for c, w := range weights {
		if w == minWeight {
			lowest = append(lowest, c)
		}
	}
	return pickByWeightThenStanding(lowest, weights, prevStanding, false)
}

// pickByWeightThenStanding resolves ties among candidates already filtered
// to the extremal weight, using each candidate's weight in the preceding
// round (higher standing wins regardless of direction — electing prefers
// the stronger candidate, eliminating spares the stronger candidate).
func pickByWeightThenStanding(candidates []string, weights, prevStanding map[string]float64, preferHighestCurrent bool) (string, bool) {
	if len(candidates) == 1 {
		return candidates[0], false
	}

	sort.Slice(candidates, func(i, j int) bool {
		wi, wj := weights[candidates[i]], weights[candidates[j]]
		if wi != wj {
			if preferHighestCurrent {
				return wi > wj
			}
			return wi < wj
		}
		return candidates[i] < candidates[j]
	})

	best := weights[candidates[0]]
	var tied []string
	for _, c := range candidates {
		if weights[c] == best {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return tied[0], false
	}

	// break by preceding-round standing: the candidate with the higher
	// prior weight wins (whether electing or sparing-from-elimination).
	sort.Slice(tied, func(i, j int) bool {
		si, sj := prevStanding[tied[i]], prevStanding[tied[j]]
		if si != sj {
			if preferHighestCurrent {
				return si > sj
			}
			return si < sj
		}
		return tied[i] < tied[j]
	})
	if len(prevStanding) > 0 && prevStanding[tied[0]] != prevStanding[tied[1]] {
		return tied[0], false
	}

	return "", true // no preceding round to break the tie: report TieUnresolved
}

// transferSurplus applies the fractional Gregory rule: each of the elected
// candidate's ballots has its weight multiplied by (total−quota)/total and
// moves to its next remaining preference.
func transferSurplus(ballots []*stvBallot, elected string, surplus, totalWeight float64, remaining map[string]bool) []Transfer {
	if totalWeight <= 0 {
		return nil
	}
	factor := surplus / totalWeight
	transfersByTarget := map[string]float64{}

	remainingAfter := remainingExcluding(remaining, elected)
	for _, b := range ballots {
		c, ok := currentPreference(b, remaining)
		if !ok || c != elected {
			continue
		}
		b.weight *= factor
		b.next++
		if next, ok := currentPreference(b, remainingAfter); ok {
			transfersByTarget[next] += b.weight
		}
	}

	return toTransferList(elected, transfersByTarget)
}

// transferAll moves an eliminated candidate's full ballots (at current
// weight) to each ballot's next remaining preference.
func transferAll(ballots []*stvBallot, eliminated string, remaining map[string]bool) []Transfer {
	transfersByTarget := map[string]float64{}
	remainingAfter := remainingExcluding(remaining, eliminated)
	for _, b := range ballots {
		c, ok := currentPreference(b, remaining)
		if !ok || c != eliminated {
			continue
		}
		b.next++
		if next, ok := currentPreference(b, remainingAfter); ok {
			transfersByTarget[next] += b.weight
		}
	}
	return toTransferList(eliminated, transfersByTarget)
}

func remainingExcluding(remaining map[string]bool, exclude string) map[string]bool {
	out := make(map[string]bool, len(remaining))
	for c, ok := range remaining {
		if ok && c != exclude {
			out[c] = true
		}
	}
	return out
}

func toTransferList(from string, byTarget map[string]float64) []Transfer {
	var out []Transfer
	targets := make([]string, 0, len(byTarget))
	for t := range byTarget {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		out = append(out, Transfer{FromCandidate: from, ToCandidate: t, Weight: byTarget[t]})
	}
	return out
}

// SimpleResult is the outcome of ranked_method=simple tabulation.
type SimpleResult struct {
	FirstPreferenceCounts map[string]int
	Winners               []string
}

// Simple tallies only first preferences; the top seats wins with no
// transfers.
func Simple(rows []ballot.TallyRow, seats int) SimpleResult {
	counts := map[string]int{}
	for _, r := range rows {
		if len(r.RankedAnswers) == 0 {
			continue
		}
		counts[r.RankedAnswers[0]]++
	}
	return SimpleResult{FirstPreferenceCounts: counts, Winners: topByCount(counts, seats)}
}

// CommitteeCandidateStats is one candidate's row in the nomination-committee
// auxiliary report.
type CommitteeCandidateStats struct {
	CandidateAnswerID string
	MeanRank          float64
	FirstPlaceVotes   int
}

// CommitteeAuxiliaryReport computes per-candidate mean rank and first-place
// vote count from committee ballots (identical STV algorithm; this is the
// supplementary report only).
func CommitteeAuxiliaryReport(rows []ballot.TallyRow) []CommitteeCandidateStats {
	rankSum := map[string]int{}
	rankCount := map[string]int{}
	firstPlace := map[string]int{}

	for _, r := range rows {
		for i, c := range r.RankedAnswers {
			rankSum[c] += i + 1
			rankCount[c]++
			if i == 0 {
				firstPlace[c]++
			}
		}
	}

	candidates := make([]string, 0, len(rankCount))
	for c := range rankCount {
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)

	out := make([]CommitteeCandidateStats, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, CommitteeCandidateStats{
			CandidateAnswerID: c,
			MeanRank:          float64(rankSum[c]) / float64(rankCount[c]),
			FirstPlaceVotes:   firstPlace[c],
		})
	}
	return out
}
