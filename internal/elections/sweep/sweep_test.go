package sweep_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/sweep"
)

type fakeStore struct {
	candidates []ballot.SweepCandidate
	deleted    []string
	deleteErr  error
}

func (f *fakeStore) SweepCandidates(ctx context.Context, cutoff time.Time) ([]ballot.SweepCandidate, error) {
	return f.candidates, nil
}

func (f *fakeStore) DeleteTokenHash(ctx context.Context, tokenHash string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, tokenHash)
	return nil
}

type fakeProbe struct {
	outstanding map[string]bool
	err         error
}

func (f *fakeProbe) TokenStillOutstanding(ctx context.Context, electionID, tokenHash string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.outstanding[tokenHash], nil
}

type fakeAuditor struct {
	records []audit.Record
}

func (f *fakeAuditor) Write(ctx context.Context, rec audit.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_ReapsOrphansEventsNoLongerKnows(t *testing.T) {
	electionID := uuid.New()
	store := &fakeStore{candidates: []ballot.SweepCandidate{
		{TokenHash: "orphan-hash", ElectionID: electionID},
		{TokenHash: "live-hash", ElectionID: electionID},
	}}
	probe := &fakeProbe{outstanding: map[string]bool{"live-hash": true}}
	auditor := &fakeAuditor{}

	s := sweep.New(store, probe, auditor, time.Hour, discardLogger())
	reaped, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, reaped)
	require.Equal(t, []string{"orphan-hash"}, store.deleted)
	require.Len(t, auditor.records, 1)
	require.Equal(t, "sweep_reap_orphan_token", auditor.records[0].Action)
}

func TestRun_LeavesCandidateWhenProbeFails(t *testing.T) {
	store := &fakeStore{candidates: []ballot.SweepCandidate{
		{TokenHash: "hash", ElectionID: uuid.New()},
	}}
	probe := &fakeProbe{err: errors.New("events unreachable")}

	s := sweep.New(store, probe, &fakeAuditor{}, time.Hour, discardLogger())
	reaped, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, reaped)
	require.Empty(t, store.deleted)
}

func TestRun_AuditMasksTokenHash(t *testing.T) {
	fullHash := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	store := &fakeStore{candidates: []ballot.SweepCandidate{
		{TokenHash: fullHash, ElectionID: uuid.New()},
	}}
	auditor := &fakeAuditor{}

	s := sweep.New(store, &fakeProbe{}, auditor, time.Hour, discardLogger())
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, auditor.records, 1)
	require.NotContains(t, auditor.records[0].Details["token_hash"], fullHash[4:60])
}
