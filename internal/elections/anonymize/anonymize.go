// Package anonymize implements post-election anonymisation:
// irreversibly replacing each ballot's member_uid with a salted digest once
// an election is closed and not preserving voter identity.
package anonymize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
)

// hashedUIDLength is len(hex.EncodeToString(sha256 sum)): an already-hashed
// member_uid has exactly this many characters, which is how Run recognises
// (and skips) rows anonymised by a prior run.
const hashedUIDLength = sha256.Size * 2

// Store is the subset of ballot.Store anonymisation needs.
type Store interface {
	ListBallotIdentities(ctx context.Context, electionID uuid.UUID) ([]ballot.BallotIdentity, error)
	UpdateMemberUID(ctx context.Context, ballotID uuid.UUID, hashedUID string) error
}

// Run anonymises every ballot of e, skipping rows already anonymised.
// Refuses elections that are not closed/archived, preserve voter identity,
// or are nomination-committee.
func Run(ctx context.Context, store Store, e *election.Election, salt string) (changed int, err error) {
	if e.Status != election.StatusClosed && e.Status != election.StatusArchived {
		return 0, apperrors.New(apperrors.KindForbidden, "anonymize.Run", "election must be closed or archived")
	}
	if e.PreserveVoterIdentity {
		return 0, apperrors.New(apperrors.KindForbidden, "anonymize.Run", "election preserves voter identity")
	}
	if e.VotingType == election.VotingNominationCommittee {
		return 0, apperrors.New(apperrors.KindForbidden, "anonymize.Run", "nomination-committee elections are excluded from anonymisation")
	}

	ballots, err := store.ListBallotIdentities(ctx, e.ID)
	if err != nil {
		return 0, err
	}

	for _, b := range ballots {
		if len(b.MemberUID) == hashedUIDLength {
			continue // already anonymised
		}
		hashed := HashMemberUID(b.MemberUID, e.ID.String(), salt)
		if err := store.UpdateMemberUID(ctx, b.ID, hashed); err != nil {
			return changed, err
		}
		changed++
	}

	return changed, nil
}

// HashMemberUID computes SHA-256(member_uid || election_id || salt). The
// digest is hex-encoded so it remains comparable across runs.
func HashMemberUID(memberUID, electionID, salt string) string {
	sum := sha256.Sum256([]byte(memberUID + electionID + salt))
	return hex.EncodeToString(sum[:])
}
