package ballot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

// uniqueViolation is Postgres SQLSTATE 23505, surfaced on the ballots'
// (election_id, member_uid) unique constraint.
const uniqueViolation = "23505"

// Store is Elections' access to tokens and ballots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RegisterTokenHash implements "S2S token registration":
// idempotent insert of a freshly minted token hash. Duplicate insertions of
// the same (still-unused) hash succeed silently.
func (s *Store) RegisterTokenHash(ctx context.Context, electionID uuid.UUID, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO elections.tokens (token_hash, election_id, registered_at, used)
		VALUES ($1, $2, now(), false)
		ON CONFLICT (token_hash) DO NOTHING
	`, tokenHash, electionID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.RegisterTokenHash", "insert token hash", err)
	}
	return nil
}

// HasVoted calls the security-definer elections.has_voted(election_id,
// member_uid) lookup so the application role never needs
// direct SELECT member_uid on elections.ballots.
func (s *Store) HasVoted(ctx context.Context, electionID uuid.UUID, memberUID string) (bool, error) {
	var voted bool
	err := s.pool.QueryRow(ctx, `SELECT elections.has_voted($1, $2)`, electionID, memberUID).Scan(&voted)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDatabase, "ballot.HasVoted", "call has_voted", err)
	}
	return voted, nil
}

// InsertMemberBallot records a member-authenticated ballot. A
// unique-constraint violation on (election_id, member_uid) surfaces as
// AlreadyVoted.
func (s *Store) InsertMemberBallot(ctx context.Context, b *Ballot) error {
	selectedJSON, err := marshalOptional(b.SelectedAnswerIDs)
	if err != nil {
		return err
	}
	rankedJSON, err := marshalOptional(b.RankedAnswers)
	if err != nil {
		return err
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	submittedAt := time.Now().Truncate(time.Minute)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertMemberBallot", "begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO elections.ballots (id, election_id, token_hash, member_uid, answer_id, selected_answer_ids, ranked_answers, submitted_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6, $7)
	`, b.ID, b.ElectionID, b.MemberUID, b.AnswerID, selectedJSON, rankedJSON, submittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.KindAlreadyVoted, "ballot.InsertMemberBallot", "member has already voted in this election")
		}
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertMemberBallot", "insert ballot", err)
	}

	for _, j := range b.Justifications {
		if _, err := tx.Exec(ctx, `
			INSERT INTO elections.ballot_justifications (id, ballot_id, candidate_answer_id, rank_position, justification_text)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), b.ID, j.CandidateAnswerID, j.RankPosition, j.Text); err != nil {
			return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertMemberBallot", "insert justification", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertMemberBallot", "commit transaction", err)
	}
	b.SubmittedAt = submittedAt
	return nil
}

// sentinelMemberUID marks ballots recorded via the legacy token-hash path,
// which carries no authenticated member identity. It is never treated as
// a real member UID by tabulation.
const sentinelMemberUID = "__token_hash_ballot__"

// InsertTokenBallot implements the legacy path: lock the token row, require
// it unused, insert the ballot, mark the token used — all in one
// transaction so concurrent redemptions of the same token see exactly one
// winner.
func (s *Store) InsertTokenBallot(ctx context.Context, electionID uuid.UUID, tokenHash, answerID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertTokenBallot", "begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var used bool
	var rowElectionID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT election_id, used FROM elections.tokens WHERE token_hash = $1 FOR UPDATE
	`, tokenHash).Scan(&rowElectionID, &used)
	switch err {
	case nil:
		// fallthrough to checks below
	case pgx.ErrNoRows:
		return apperrors.New(apperrors.KindNotFound, "ballot.InsertTokenBallot", "token not registered")
	default:
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertTokenBallot", "lock token row", err)
	}

	if rowElectionID != electionID {
		return apperrors.New(apperrors.KindValidation, "ballot.InsertTokenBallot", "token was not issued for this election")
	}
	if used {
		return apperrors.New(apperrors.KindAlreadyVoted, "ballot.InsertTokenBallot", "token has already been redeemed")
	}

	ballotID := uuid.New()
	submittedAt := time.Now().Truncate(time.Minute)
	_, err = tx.Exec(ctx, `
		INSERT INTO elections.ballots (id, election_id, token_hash, member_uid, answer_id, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ballotID, electionID, tokenHash, sentinelMemberUID, answerID, submittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.KindAlreadyVoted, "ballot.InsertTokenBallot", "token has already been redeemed")
		}
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertTokenBallot", "insert ballot", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE elections.tokens SET used = true, used_at = $2 WHERE token_hash = $1
	`, tokenHash, submittedAt); err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertTokenBallot", "mark token used", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.InsertTokenBallot", "commit transaction", err)
	}
	return nil
}

// TallyRow is one decoded ballot, the shape every tabulation algorithm
// consumes.
type TallyRow struct {
	MemberUID         string
	AnswerID          string
	SelectedAnswerIDs []string
	RankedAnswers     []string
}

// ListForTally loads every ballot of an election for on-demand tabulation
//.
func (s *Store) ListForTally(ctx context.Context, electionID uuid.UUID) ([]TallyRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT member_uid, answer_id, selected_answer_ids, ranked_answers
		FROM elections.ballots WHERE election_id = $1
	`, electionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListForTally", "query ballots", err)
	}
	defer rows.Close()

	var out []TallyRow
	for rows.Next() {
		var row TallyRow
		var answerID *string
		var selectedJSON, rankedJSON []byte
		if err := rows.Scan(&row.MemberUID, &answerID, &selectedJSON, &rankedJSON); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListForTally", "scan ballot", err)
		}
		if answerID != nil {
			row.AnswerID = *answerID
		}
		if len(selectedJSON) > 0 {
			if err := json.Unmarshal(selectedJSON, &row.SelectedAnswerIDs); err != nil {
				return nil, fmt.Errorf("unmarshal selected_answer_ids: %w", err)
			}
		}
		if len(rankedJSON) > 0 {
			if err := json.Unmarshal(rankedJSON, &row.RankedAnswers); err != nil {
				return nil, fmt.Errorf("unmarshal ranked_answers: %w", err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListForTally", "iterate ballots", err)
	}
	return out, nil
}

// CommitteeRow is one nomination-committee ballot rendered with voter
// identity.
type CommitteeRow struct {
	MemberUID      string
	RankedAnswers  []string
	Justifications []Justification
	SubmittedAt    time.Time
}

// ListCommitteeBallots loads ballots with their justifications for the
// committee results view.
func (s *Store) ListCommitteeBallots(ctx context.Context, electionID uuid.UUID) ([]CommitteeRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, member_uid, ranked_answers, submitted_at
		FROM elections.ballots WHERE election_id = $1
	`, electionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListCommitteeBallots", "query ballots", err)
	}
	defer rows.Close()

	var out []CommitteeRow
	var ids []uuid.UUID
	indexByBallot := map[uuid.UUID]int{}
	for rows.Next() {
		var id uuid.UUID
		var row CommitteeRow
		var rankedJSON []byte
		if err := rows.Scan(&id, &row.MemberUID, &rankedJSON, &row.SubmittedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListCommitteeBallots", "scan ballot", err)
		}
		if len(rankedJSON) > 0 {
			if err := json.Unmarshal(rankedJSON, &row.RankedAnswers); err != nil {
				return nil, fmt.Errorf("unmarshal ranked_answers: %w", err)
			}
		}
		out = append(out, row)
		ids = append(ids, id)
		indexByBallot[id] = len(out) - 1
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListCommitteeBallots", "iterate ballots", err)
	}

	if len(ids) == 0 {
		return out, nil
	}

	jrows, err := s.pool.Query(ctx, `
		SELECT ballot_id, candidate_answer_id, rank_position, justification_text
		FROM elections.ballot_justifications WHERE ballot_id = ANY($1)
		ORDER BY rank_position
	`, ids)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListCommitteeBallots", "query justifications", err)
	}
	defer jrows.Close()
	for jrows.Next() {
		var ballotID uuid.UUID
		var j Justification
		if err := jrows.Scan(&ballotID, &j.CandidateAnswerID, &j.RankPosition, &j.Text); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListCommitteeBallots", "scan justification", err)
		}
		if i, ok := indexByBallot[ballotID]; ok {
			out[i].Justifications = append(out[i].Justifications, j)
		}
	}
	if err := jrows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListCommitteeBallots", "iterate justifications", err)
	}

	return out, nil
}

// UpdateMemberUID overwrites one ballot's member_uid with its salted
// digest; anonymize.Run drives it once per ballot.
func (s *Store) UpdateMemberUID(ctx context.Context, ballotID uuid.UUID, hashedUID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE elections.ballots SET member_uid = $2 WHERE id = $1`, ballotID, hashedUID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.UpdateMemberUID", "update member_uid", err)
	}
	return nil
}

// BallotIdentity is the minimal projection anonymize.Run needs.
type BallotIdentity struct {
	ID        uuid.UUID
	MemberUID string
}

func (s *Store) ListBallotIdentities(ctx context.Context, electionID uuid.UUID) ([]BallotIdentity, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, member_uid FROM elections.ballots WHERE election_id = $1`, electionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListBallotIdentities", "query ballots", err)
	}
	defer rows.Close()

	var out []BallotIdentity
	for rows.Next() {
		var b BallotIdentity
		if err := rows.Scan(&b.ID, &b.MemberUID); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListBallotIdentities", "scan ballot", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.ListBallotIdentities", "iterate ballots", err)
	}
	return out, nil
}

// SweepCandidates lists registered-but-unused token hashes older than
// cutoff, for the orphan reconciliation sweep.
type SweepCandidate struct {
	TokenHash  string
	ElectionID uuid.UUID
}

func (s *Store) SweepCandidates(ctx context.Context, cutoff time.Time) ([]SweepCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_hash, election_id FROM elections.tokens
		WHERE used = false AND registered_at < $1
	`, cutoff)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.SweepCandidates", "query tokens", err)
	}
	defer rows.Close()

	var out []SweepCandidate
	for rows.Next() {
		var c SweepCandidate
		if err := rows.Scan(&c.TokenHash, &c.ElectionID); err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.SweepCandidates", "scan token", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ballot.SweepCandidates", "iterate tokens", err)
	}
	return out, nil
}

// ResetAll deletes every token hash and every ballot of elections not yet
// closed or archived, the Elections half of Events' scope=all reset. It
// returns the number of token rows removed.
func (s *Store) ResetAll(ctx context.Context) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabase, "ballot.ResetAll", "begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		DELETE FROM elections.ballot_justifications WHERE ballot_id IN (
			SELECT b.id FROM elections.ballots b
			JOIN elections.elections e ON e.id = b.election_id
			WHERE e.status NOT IN ('closed', 'archived')
		)
	`); err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabase, "ballot.ResetAll", "delete justifications", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM elections.ballots WHERE election_id IN (
			SELECT id FROM elections.elections WHERE status NOT IN ('closed', 'archived')
		)
	`); err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabase, "ballot.ResetAll", "delete ballots", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM elections.tokens`)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabase, "ballot.ResetAll", "delete tokens", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabase, "ballot.ResetAll", "commit transaction", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteTokenHash(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM elections.tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "ballot.DeleteTokenHash", "delete token hash", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

func marshalOptional(values []string) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal values: %w", err)
	}
	return b, nil
}
