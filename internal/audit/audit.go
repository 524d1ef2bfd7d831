// Package audit writes the append-only audit trail recorded for every
// state-changing or privilege-gated operation. Records never
// carry a kennitala, name, or raw token — only masked forms.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one append-only audit row.
type Record struct {
	Timestamp     time.Time
	Action        string
	Success       bool
	PerformedBy   string // masked actor identifier
	CorrelationID string
	ReasonCode    string // set on failure
	Details       map[string]any
}

// Writer persists Records into a schema-qualified audit_log table.
type Writer struct {
	pool   *pgxpool.Pool
	schema string
	log    *slog.Logger
}

func NewWriter(pool *pgxpool.Pool, schema string, log *slog.Logger) *Writer {
	return &Writer{pool: pool, schema: schema, log: log}
}

func (w *Writer) Write(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.audit_log (timestamp, action, success, performed_by, correlation_id, reason_code, details_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, w.schema)

	if _, err := w.pool.Exec(ctx, query,
		rec.Timestamp, rec.Action, rec.Success, rec.PerformedBy, rec.CorrelationID, rec.ReasonCode, detailsJSON,
	); err != nil {
		// Audit logging must never itself take down a request; log and move on.
		if w.log != nil {
			w.log.Error("failed to write audit record", "action", rec.Action, "error", err)
		}
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// List returns the most recent audit records, newest first, for the
// supplemented admin audit viewer.
func (w *Writer) List(ctx context.Context, limit int) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT timestamp, action, success, performed_by, correlation_id, reason_code, details_json
		FROM %s.audit_log ORDER BY timestamp DESC LIMIT $1
	`, w.schema)

	rows, err := w.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var detailsJSON []byte
		if err := rows.Scan(&rec.Timestamp, &rec.Action, &rec.Success, &rec.PerformedBy, &rec.CorrelationID, &rec.ReasonCode, &detailsJSON); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &rec.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

// MaskKennitala returns the first 6 digits plus "-****".
func MaskKennitala(kennitala string) string {
	if len(kennitala) < 6 {
		return "******-****"
	}
	return kennitala[:6] + "-****"
}

// MaskHash returns the first and last four hex characters of a token hash,
// e.g. for correlating a specific registration in logs without exposing it.
func MaskHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:4] + "…" + hash[len(hash)-4:]
}
