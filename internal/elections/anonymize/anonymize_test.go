package anonymize_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/anonymize"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
)

type fakeStore struct {
	identities []ballot.BallotIdentity
	updated    map[uuid.UUID]string
}

func (f *fakeStore) ListBallotIdentities(ctx context.Context, electionID uuid.UUID) ([]ballot.BallotIdentity, error) {
	return f.identities, nil
}

func (f *fakeStore) UpdateMemberUID(ctx context.Context, ballotID uuid.UUID, hashedUID string) error {
	if f.updated == nil {
		f.updated = map[uuid.UUID]string{}
	}
	f.updated[ballotID] = hashedUID
	return nil
}

func closedElection() *election.Election {
	return &election.Election{
		ID:                    uuid.New(),
		Status:                election.StatusClosed,
		VotingType:            election.VotingSingleChoice,
		PreserveVoterIdentity: false,
	}
}

func TestRun_RefusesOpenElection(t *testing.T) {
	e := closedElection()
	e.Status = election.StatusPublished
	_, err := anonymize.Run(context.Background(), &fakeStore{}, e, "salt")
	require.Error(t, err)
}

func TestRun_RefusesPreserveVoterIdentity(t *testing.T) {
	e := closedElection()
	e.PreserveVoterIdentity = true
	_, err := anonymize.Run(context.Background(), &fakeStore{}, e, "salt")
	require.Error(t, err)
}

func TestRun_RefusesNominationCommittee(t *testing.T) {
	e := closedElection()
	e.VotingType = election.VotingNominationCommittee
	_, err := anonymize.Run(context.Background(), &fakeStore{}, e, "salt")
	require.Error(t, err)
}

// A second run over already-hashed rows changes nothing.
func TestRun_Idempotent(t *testing.T) {
	e := closedElection()
	ballotID := uuid.New()
	store := &fakeStore{identities: []ballot.BallotIdentity{{ID: ballotID, MemberUID: "member-123"}}}

	changed, err := anonymize.Run(context.Background(), store, e, "pepper")
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	hashed := store.updated[ballotID]
	require.Len(t, hashed, 64)

	store.identities[0].MemberUID = hashed
	changed, err = anonymize.Run(context.Background(), store, e, "pepper")
	require.NoError(t, err)
	require.Equal(t, 0, changed)
}

func TestHashMemberUID_Deterministic(t *testing.T) {
	a := anonymize.HashMemberUID("member-1", "election-1", "salt")
	b := anonymize.HashMemberUID("member-1", "election-1", "salt")
	require.Equal(t, a, b)

	c := anonymize.HashMemberUID("member-2", "election-1", "salt")
	require.NotEqual(t, a, c)
}
