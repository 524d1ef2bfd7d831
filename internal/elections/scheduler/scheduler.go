// Package scheduler drives automatic election open/close transitions from
// scheduled_start/scheduled_end: a single-instance
// loop, lease-based so a second replica backs off, idempotent and audited.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
)

// leaseKey is the fixed advisory-lock key guarding scheduler execution so
// at most one replica applies transitions at a time.
const leaseKey = int64(0x656b6b6c657369)

const schedulerActor = "scheduler"

// Scheduler periodically applies overdue scheduled transitions.
type Scheduler struct {
	pool   *pgxpool.Pool
	store  *election.Store
	audit  *audit.Writer
	clock  clockwork.Clock
	tick   time.Duration
	log    *slog.Logger
}

func New(pool *pgxpool.Pool, store *election.Store, auditWriter *audit.Writer, clock clockwork.Clock, tick time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{pool: pool, store: store, audit: auditWriter, clock: clock, tick: tick, log: log}
}

// Run blocks, waking at s.tick intervals until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.tickOnce(ctx); err != nil {
				s.log.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// TickOnce runs a single scheduling pass immediately, used by the operator
// CLI's one-shot "scheduler tick" command instead of waiting for s.tick.
func (s *Scheduler) TickOnce(ctx context.Context) error {
	return s.tickOnce(ctx)
}

func (s *Scheduler) tickOnce(ctx context.Context) error {
	acquired, release, err := s.acquireLease(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return nil // another replica holds the lease this tick
	}
	defer release()

	now := s.clock.Now()

	if err := s.applyStarts(ctx, now); err != nil {
		return err
	}
	return s.applyEnds(ctx, now)
}

// acquireLease takes a session-level advisory lock on a dedicated pooled
// connection; Postgres drops it when that connection closes, so it is
// released if the process dies mid-tick.
func (s *Scheduler) acquireLease(ctx context.Context) (bool, func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, nil, err
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, leaseKey).Scan(&acquired); err != nil {
		conn.Release()
		return false, nil, err
	}
	if !acquired {
		conn.Release()
		return false, nil, nil
	}

	release := func() {
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, leaseKey)
		conn.Release()
	}
	return true, release, nil
}

func (s *Scheduler) applyStarts(ctx context.Context, now time.Time) error {
	due, err := s.store.DueScheduledStarts(ctx, now)
	if err != nil {
		return err
	}
	for _, e := range due {
		err := s.store.SetStatus(ctx, e.ID, election.StatusDraft, election.StatusPublished, schedulerActor)
		s.auditTransition(ctx, "scheduled_publish", e.ID.String(), err)
	}
	return nil
}

func (s *Scheduler) applyEnds(ctx context.Context, now time.Time) error {
	due, err := s.store.DueScheduledEnds(ctx, now)
	if err != nil {
		return err
	}
	for _, e := range due {
		err := s.store.SetStatus(ctx, e.ID, e.Status, election.StatusClosed, schedulerActor)
		s.auditTransition(ctx, "scheduled_close", e.ID.String(), err)
	}
	return nil
}

func (s *Scheduler) auditTransition(ctx context.Context, action, electionID string, err error) {
	rec := audit.Record{
		Action:      action,
		Success:     err == nil,
		PerformedBy: schedulerActor,
		Details:     map[string]any{"election_id": electionID},
	}
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			rec.ReasonCode = string(appErr.Kind)
		}
	}
	if writeErr := s.audit.Write(ctx, rec); writeErr != nil {
		s.log.Error("failed to audit scheduled transition", "error", writeErr)
	}
}
