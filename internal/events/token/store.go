// Package token implements Events' token lifecycle: mint, read status,
// reset mine/all.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

// Record mirrors one row of events.tokens.
type Record struct {
	TokenID             uuid.UUID
	MemberUID           string
	KennitalaNormalized string
	ElectionID          string
	TokenPlainHash      string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Used                bool
}

// Store is Events' own schema access; it never reads Elections' tables.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GenerateToken returns a fresh plaintext token of at least 128 bits of
// cryptographic randomness and its SHA-256 hash.
func GenerateToken() (plaintext, hash string, err error) {
	buf := make([]byte, 32) // 256 bits
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token randomness: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(sum[:])
	return plaintext, hash, nil
}

// Register is called by RequestToken while an S2S registration callback is
// pending: it serializes concurrent requests for the same (member, election)
// pair with a Postgres advisory lock (a row doesn't necessarily exist yet to
// SELECT ... FOR UPDATE), checks for a live token, deletes anything stale,
// and — if register succeeds — inserts the new row, all within one
// transaction, so a failed S2S call rolls the whole thing back.
func (s *Store) Register(
	ctx context.Context,
	memberUID, kennitalaNormalized, electionID string,
	ttl time.Duration,
	register func(ctx context.Context, tokenHash string) error,
) (plaintext string, expiresAt time.Time, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.KindDatabase, "token.Register", "begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	lockKey := memberUID + ":" + electionID
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.KindDatabase, "token.Register", "acquire lock", err)
	}

	now := time.Now()
	var existing Record
	row := tx.QueryRow(ctx, `
		SELECT token_id, used, expires_at FROM events.tokens
		WHERE member_uid = $1 AND election_id = $2
	`, memberUID, electionID)
	switch scanErr := row.Scan(&existing.TokenID, &existing.Used, &existing.ExpiresAt); scanErr {
	case nil:
		if !existing.Used && existing.ExpiresAt.After(now) {
			return "", time.Time{}, apperrors.New(apperrors.KindConflict, "token.Register", "member already has an active token for this election")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM events.tokens WHERE token_id = $1`, existing.TokenID); err != nil {
			return "", time.Time{}, apperrors.Wrap(apperrors.KindDatabase, "token.Register", "delete stale token", err)
		}
	case pgx.ErrNoRows:
		// no existing token, proceed
	default:
		return "", time.Time{}, apperrors.Wrap(apperrors.KindDatabase, "token.Register", "look up existing token", scanErr)
	}

	plain, hash, err := GenerateToken()
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.KindInternal, "token.Register", "generate token", err)
	}

	if err := register(ctx, hash); err != nil {
		return "", time.Time{}, err // rolls back; plaintext is discarded
	}

	tokenID := uuid.New()
	expiresAt = now.Add(ttl)
	if _, err := tx.Exec(ctx, `
		INSERT INTO events.tokens (token_id, member_uid, kennitala_normalized, election_id, token_plain_hash, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`, tokenID, memberUID, kennitalaNormalized, electionID, hash, now, expiresAt); err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.KindDatabase, "token.Register", "insert token", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.KindDatabase, "token.Register", "commit transaction", err)
	}

	return plain, expiresAt, nil
}

// Status answers "Read own status".
func (s *Store) Status(ctx context.Context, memberUID, electionID string) (hasToken, used bool, expiresAt time.Time, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT used, expires_at FROM events.tokens
		WHERE member_uid = $1 AND election_id = $2
	`, memberUID, electionID)
	switch scanErr := row.Scan(&used, &expiresAt); scanErr {
	case nil:
		return true, used, expiresAt, nil
	case pgx.ErrNoRows:
		return false, false, time.Time{}, nil
	default:
		return false, false, time.Time{}, apperrors.Wrap(apperrors.KindDatabase, "token.Status", "query token status", scanErr)
	}
}

// DeleteMine removes the caller's own token row for an election ("reset mine").
func (s *Store) DeleteMine(ctx context.Context, memberUID, electionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events.tokens WHERE member_uid = $1 AND election_id = $2`, memberUID, electionID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabase, "token.DeleteMine", "delete token", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAll removes every token row across all elections ("reset all").
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events.tokens`)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabase, "token.DeleteAll", "delete all tokens", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Exists(ctx context.Context, memberUID, electionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM events.tokens WHERE member_uid = $1 AND election_id = $2)
	`, memberUID, electionID).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDatabase, "token.Exists", "check token existence", err)
	}
	return exists, nil
}

// IsOutstanding answers the Elections-side orphan sweep's S2S probe:
// true if Events still holds a live, unused
// record of tokenHash for electionID.
func (s *Store) IsOutstanding(ctx context.Context, electionID, tokenHash string) (bool, error) {
	var outstanding bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM events.tokens
			WHERE election_id = $1 AND token_plain_hash = $2 AND used = false
		)
	`, electionID, tokenHash).Scan(&outstanding)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDatabase, "token.IsOutstanding", "check token status", err)
	}
	return outstanding, nil
}
