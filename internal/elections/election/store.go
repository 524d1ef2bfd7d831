package election

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

// Store is Elections' direct access to elections.elections: named columns,
// RETURNING, pgx.ErrNoRows mapped to NotFound.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, e *Election) error {
	answersJSON, err := json.Marshal(e.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	committeeJSON, err := json.Marshal(e.CommitteeMemberUIDs)
	if err != nil {
		return fmt.Errorf("marshal committee_member_uids: %w", err)
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = StatusDraft
	}
	if e.RoundNumber == 0 {
		e.RoundNumber = 1
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO elections.elections (
			id, title, question, answers, voting_type, max_selections, seats_to_fill,
			eligibility, committee_member_uids, status, hidden, scheduled_start, scheduled_end,
			preserve_voter_identity, requires_justification, justification_required_for_top_n,
			ranked_method, quota_type, round_number, parent_election_id, results_embargoed,
			created_by, updated_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
	`,
		e.ID, e.Title, e.Question, answersJSON, e.VotingType, e.MaxSelections, e.SeatsToFill,
		e.Eligibility, committeeJSON, e.Status, e.Hidden, e.ScheduledStart, e.ScheduledEnd,
		e.PreserveVoterIdentity, e.RequiresJustification, e.JustificationRequiredForTopN,
		nullableString(e.RankedMethod), nullableString(e.QuotaType), e.RoundNumber, e.ParentElectionID, e.ResultsEmbargoed,
		e.CreatedBy, e.UpdatedBy, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "election.Create", "insert election", err)
	}
	return nil
}

const selectColumns = `
	id, title, question, answers, voting_type, max_selections, seats_to_fill,
	eligibility, committee_member_uids, status, hidden, scheduled_start, scheduled_end,
	preserve_voter_identity, requires_justification, justification_required_for_top_n,
	ranked_method, quota_type, round_number, parent_election_id, results_embargoed,
	created_by, updated_by, created_at, updated_at
`

func scanElection(row pgx.Row) (*Election, error) {
	var e Election
	var answersJSON, committeeJSON []byte
	var rankedMethod, quotaType *string

	err := row.Scan(
		&e.ID, &e.Title, &e.Question, &answersJSON, &e.VotingType, &e.MaxSelections, &e.SeatsToFill,
		&e.Eligibility, &committeeJSON, &e.Status, &e.Hidden, &e.ScheduledStart, &e.ScheduledEnd,
		&e.PreserveVoterIdentity, &e.RequiresJustification, &e.JustificationRequiredForTopN,
		&rankedMethod, &quotaType, &e.RoundNumber, &e.ParentElectionID, &e.ResultsEmbargoed,
		&e.CreatedBy, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answersJSON, &e.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(committeeJSON, &e.CommitteeMemberUIDs); err != nil {
		return nil, fmt.Errorf("unmarshal committee_member_uids: %w", err)
	}
	if rankedMethod != nil {
		e.RankedMethod = *rankedMethod
	}
	if quotaType != nil {
		e.QuotaType = *quotaType
	}
	return &e, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Election, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM elections.elections WHERE id = $1", id)
	e, err := scanElection(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.New(apperrors.KindNotFound, "election.Get", "election not found")
		}
		return nil, apperrors.Wrap(apperrors.KindDatabase, "election.Get", "query election", err)
	}
	return e, nil
}

// List returns elections visible to the caller; includeHidden is honored
// only by callers who have already confirmed management role.
func (s *Store) List(ctx context.Context, includeHidden bool) ([]*Election, error) {
	query := "SELECT " + selectColumns + " FROM elections.elections"
	if !includeHidden {
		query += " WHERE hidden = false"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "election.List", "query elections", err)
	}
	defer rows.Close()

	var out []*Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabase, "election.List", "scan election", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "election.List", "iterate elections", err)
	}
	return out, nil
}

// Update overwrites the full mutable surface of e (structural fields must
// already have been checked against StructurallyMutable by the caller).
func (s *Store) Update(ctx context.Context, e *Election) error {
	answersJSON, err := json.Marshal(e.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	committeeJSON, err := json.Marshal(e.CommitteeMemberUIDs)
	if err != nil {
		return fmt.Errorf("marshal committee_member_uids: %w", err)
	}
	e.UpdatedAt = time.Now()

	tag, err := s.pool.Exec(ctx, `
		UPDATE elections.elections SET
			title = $2, question = $3, answers = $4, voting_type = $5, max_selections = $6,
			seats_to_fill = $7, eligibility = $8, committee_member_uids = $9, hidden = $10,
			scheduled_start = $11, scheduled_end = $12, preserve_voter_identity = $13,
			requires_justification = $14, justification_required_for_top_n = $15,
			ranked_method = $16, quota_type = $17, results_embargoed = $18,
			updated_by = $19, updated_at = $20
		WHERE id = $1
	`,
		e.ID, e.Title, e.Question, answersJSON, e.VotingType, e.MaxSelections,
		e.SeatsToFill, e.Eligibility, committeeJSON, e.Hidden,
		e.ScheduledStart, e.ScheduledEnd, e.PreserveVoterIdentity,
		e.RequiresJustification, e.JustificationRequiredForTopN,
		nullableString(e.RankedMethod), nullableString(e.QuotaType), e.ResultsEmbargoed,
		e.UpdatedBy, e.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "election.Update", "update election", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindNotFound, "election.Update", "election not found")
	}
	return nil
}

// SetStatus applies a state machine transition's destination status
// transactionally, re-checking the current status to guard against a
// concurrent transition.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus, updatedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE elections.elections SET status = $3, updated_by = $4, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, fromStatus, toStatus, updatedBy)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "election.SetStatus", "update status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindConflict, "election.SetStatus", "election status changed concurrently")
	}
	return nil
}

func (s *Store) SetHidden(ctx context.Context, id uuid.UUID, hidden bool, updatedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE elections.elections SET hidden = $2, updated_by = $3, updated_at = now() WHERE id = $1
	`, id, hidden, updatedBy)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "election.SetHidden", "update hidden flag", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindNotFound, "election.SetHidden", "election not found")
	}
	return nil
}

// DueScheduledStarts returns draft elections whose scheduled_start has
// passed, for the scheduler to publish.
func (s *Store) DueScheduledStarts(ctx context.Context, now time.Time) ([]*Election, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectColumns+` FROM elections.elections
		WHERE status = $1 AND scheduled_start IS NOT NULL AND scheduled_start <= $2`, StatusDraft, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "election.DueScheduledStarts", "query", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// DueScheduledEnds returns published/paused elections whose scheduled_end
// has passed, for the scheduler to close.
func (s *Store) DueScheduledEnds(ctx context.Context, now time.Time) ([]*Election, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectColumns+` FROM elections.elections
		WHERE status IN ($1, $2) AND scheduled_end IS NOT NULL AND scheduled_end <= $3`,
		StatusPublished, StatusPaused, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "election.DueScheduledEnds", "query", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows pgx.Rows) ([]*Election, error) {
	var out []*Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabase, "election.scanAll", "scan election", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "election.scanAll", "iterate", err)
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
