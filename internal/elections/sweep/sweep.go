// Package sweep implements the orphan-token reconciliation sweep:
// Elections registers a token hash before Events commits its own
// row, so a crash between those two steps can leave Elections holding a
// token hash Events never finished minting. The sweep reaps such hashes
// once they are older than the token TTL and Events confirms it has no
// matching record.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/ballot"
)

// EventsProbe asks Events whether it still has a record of tokenHash,
// keyed by its owning election.
type EventsProbe interface {
	TokenStillOutstanding(ctx context.Context, electionID, tokenHash string) (bool, error)
}

// Store is the subset of ballot.Store the sweep needs.
type Store interface {
	SweepCandidates(ctx context.Context, cutoff time.Time) ([]ballot.SweepCandidate, error)
	DeleteTokenHash(ctx context.Context, tokenHash string) error
}

// Auditor records each reaped orphan; satisfied by *audit.Writer.
type Auditor interface {
	Write(ctx context.Context, rec audit.Record) error
}

// Sweeper periodically reaps orphaned token hashes.
type Sweeper struct {
	store   Store
	probe   EventsProbe
	audit   Auditor
	ttl     time.Duration
	log     *slog.Logger
}

func New(store Store, probe EventsProbe, auditWriter Auditor, ttl time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{store: store, probe: probe, audit: auditWriter, ttl: ttl, log: log}
}

// Run reaps every unused token hash registered more than ttl ago that
// Events no longer has a record of.
func (s *Sweeper) Run(ctx context.Context) (reaped int, err error) {
	cutoff := time.Now().Add(-s.ttl)
	candidates, err := s.store.SweepCandidates(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, c := range candidates {
		outstanding, err := s.probe.TokenStillOutstanding(ctx, c.ElectionID.String(), c.TokenHash)
		if err != nil {
			s.log.Error("sweep: probe failed, leaving candidate in place", "error", err)
			continue
		}
		if outstanding {
			continue // Events still has this token; not orphaned
		}

		if err := s.store.DeleteTokenHash(ctx, c.TokenHash); err != nil {
			s.log.Error("sweep: failed to delete orphan token hash", "error", err)
			continue
		}
		reaped++

		_ = s.audit.Write(ctx, audit.Record{
			Action:      "sweep_reap_orphan_token",
			Success:     true,
			PerformedBy: "sweep",
			Details:     map[string]any{"election_id": c.ElectionID.String(), "token_hash": audit.MaskHash(c.TokenHash)},
		})
	}

	return reaped, nil
}
