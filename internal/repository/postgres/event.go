package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/dormant-leads/internal/domain"
)

// EventRepo stores raw network events.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed network event store.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Append inserts events in a single transaction. Events whose payload does
// not match their type are rejected before anything is written.
func (r *EventRepo) Append(ctx context.Context, events []domain.NetworkEvent) error {
	if len(events) == 0 {
		return nil
	}
	payloads := make([][]byte, len(events))
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("event %s: %w", events[i].ID, err)
		}
		b, err := json.Marshal(events[i].Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payloads[i] = b
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO network_events (id, hashed_line, event_type, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`)
	if err != nil {
		return fmt.Errorf("prepare insert event: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.HashedLine, e.Type, payloads[i], e.CreatedAt); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// Unprocessed returns up to limit pending events grouped by line, oldest
// first within a line.
func (r *EventRepo) Unprocessed(ctx context.Context, limit int) ([]domain.NetworkEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, hashed_line, event_type, payload, created_at
		FROM network_events
		WHERE NOT processed
		ORDER BY hashed_line, created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("unprocessed events: %w", err)
	}
	defer rows.Close()

	var out []domain.NetworkEvent
	for rows.Next() {
		var (
			e       domain.NetworkEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.HashedLine, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkProcessed flags events as consumed by detection.
func (r *EventRepo) MarkProcessed(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE network_events SET processed = TRUE, processed_at = $2
		WHERE id = ANY($1)`, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("mark events processed: %w", err)
	}
	return nil
}

// DeleteProcessedBefore removes at most batch processed events older than
// before. Pending events are never deleted.
func (r *EventRepo) DeleteProcessedBefore(ctx context.Context, before time.Time, batch int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM network_events
		WHERE id IN (
			SELECT id FROM network_events
			WHERE processed AND processed_at < $1
			ORDER BY id
			LIMIT $2
		)`, before, batch)
	if err != nil {
		return 0, fmt.Errorf("delete processed events: %w", err)
	}
	return res.RowsAffected()
}
