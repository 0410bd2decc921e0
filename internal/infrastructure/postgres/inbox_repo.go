package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/inbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InboxRepository persists per-event idempotency and retry state.
// Every method must run on the transaction injected into the context;
// the FOR UPDATE row lock is what serializes concurrent consumers racing
// on the same event_id.
type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

const selectInboxForUpdate = `
	SELECT
		id, event_id, subject,
		COALESCE(source, ''),
		COALESCE(stream, ''),
		COALESCE(consumer, ''),
		payload,
		processed_at, attempts, parked_at,
		COALESCE(last_error, ''),
		created_at, updated_at
	FROM event_inbox
	WHERE event_id = $1
	FOR UPDATE
`

// FindOrCreate returns the locked inbox row for the event, inserting it on
// first sighting. The insert itself is the dedupe gate: ON CONFLICT DO
// NOTHING plus the re-select guarantees the caller always observes a
// locked, up-to-date row even when two consumers race on the first insert.
func (r *InboxRepository) FindOrCreate(ctx context.Context, rec *inbox.Record) (*inbox.Record, error) {
	tx := GetTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("inbox find-or-create requires a transaction")
	}

	found, err := r.lockByEventID(ctx, tx, rec.EventID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	const insert = `
		INSERT INTO event_inbox (
			event_id, subject, source, stream, consumer, payload,
			attempts, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err = tx.Exec(ctx, insert,
		rec.EventID, rec.Subject,
		nullIfEmptyText(rec.Source), nullIfEmptyText(rec.Stream), nullIfEmptyText(rec.Consumer),
		rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("insert inbox record: %w", err)
	}

	return r.lockByEventID(ctx, tx, rec.EventID)
}

// MarkProcessed sets the terminal success timestamp and clears the last
// recorded error. The row is never reprocessed afterwards.
func (r *InboxRepository) MarkProcessed(ctx context.Context, rec *inbox.Record) error {
	tx := GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("inbox mark-processed requires a transaction")
	}

	const query = `
		UPDATE event_inbox
		SET processed_at = NOW(), last_error = NULL, updated_at = NOW()
		WHERE event_id = $1
	`

	if _, err := tx.Exec(ctx, query, rec.EventID); err != nil {
		return fmt.Errorf("mark inbox record processed: %w", err)
	}

	return nil
}

// RecordFailure increments the attempt counter and persists the error.
// When the counter reaches maxAttempts the event is parked permanently.
func (r *InboxRepository) RecordFailure(ctx context.Context, rec *inbox.Record, cause string, maxAttempts int) (inbox.Decision, error) {
	tx := GetTx(ctx)
	if tx == nil {
		return inbox.DecisionRetry, fmt.Errorf("inbox record-failure requires a transaction")
	}

	rec.Attempts++
	rec.LastError = cause

	if rec.Attempts >= maxAttempts {
		const park = `
			UPDATE event_inbox
			SET attempts = $2, last_error = $3, parked_at = NOW(), updated_at = NOW()
			WHERE event_id = $1
		`
		if _, err := tx.Exec(ctx, park, rec.EventID, rec.Attempts, cause); err != nil {
			return inbox.DecisionRetry, fmt.Errorf("park inbox record: %w", err)
		}
		return inbox.DecisionPark, nil
	}

	const retry = `
		UPDATE event_inbox
		SET attempts = $2, last_error = $3, updated_at = NOW()
		WHERE event_id = $1
	`
	if _, err := tx.Exec(ctx, retry, rec.EventID, rec.Attempts, cause); err != nil {
		return inbox.DecisionRetry, fmt.Errorf("update inbox attempts: %w", err)
	}

	return inbox.DecisionRetry, nil
}

func (r *InboxRepository) lockByEventID(ctx context.Context, tx pgx.Tx, eventID string) (*inbox.Record, error) {
	rec := &inbox.Record{}
	err := tx.QueryRow(ctx, selectInboxForUpdate, eventID).Scan(
		&rec.ID, &rec.EventID, &rec.Subject,
		&rec.Source, &rec.Stream, &rec.Consumer,
		&rec.Payload,
		&rec.ProcessedAt, &rec.Attempts, &rec.ParkedAt,
		&rec.LastError,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock inbox record: %w", err)
	}

	return rec, nil
}

func nullIfEmptyText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
