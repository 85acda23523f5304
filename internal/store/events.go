package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/service"
)

const eventColumns = `id, provider_event_id, event_type, payload, received_at,
	processed, success, processing_time_ms, COALESCE(error_message, '') AS error_message`

// ReserveEvent inserts the event row inside the current transaction. When the
// provider already delivered this id, the insert conflicts and the prior row
// is returned instead; a concurrent in-flight duplicate blocks on the unique
// index until this transaction resolves, which is what makes redelivery races
// converge to exactly one application.
func (t *TxStore) ReserveEvent(ctx context.Context, ev *models.InboundEvent) (*models.InboundEvent, error) {
	row := t.tx.QueryRowxContext(ctx, `
		INSERT INTO inbound_events (provider_event_id, event_type, payload, received_at, processed, success, processing_time_ms)
		VALUES ($1, $2, $3, NOW(), FALSE, FALSE, 0)
		ON CONFLICT (provider_event_id) DO NOTHING
		RETURNING id, received_at`,
		ev.ProviderEventID, ev.EventType, string(ev.Payload))

	err := row.Scan(&ev.ID, &ev.ReceivedAt)
	if err == nil {
		return nil, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	var prior models.InboundEvent
	err = t.tx.GetContext(ctx, &prior,
		"SELECT "+eventColumns+" FROM inbound_events WHERE provider_event_id = $1",
		ev.ProviderEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load duplicate event: %w", err)
	}
	return &prior, nil
}

// FinishEvent flips processed exactly once. Calling it for a missing or
// already-processed event is a programming error, never expected in normal
// operation.
func (t *TxStore) FinishEvent(ctx context.Context, providerEventID string, success bool, elapsed time.Duration, errMsg string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE inbound_events
		SET processed = TRUE, success = $2, processing_time_ms = $3, error_message = NULLIF($4, '')
		WHERE provider_event_id = $1 AND processed = FALSE`,
		providerEventID, success, elapsed.Milliseconds(), errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var processed bool
	err = t.tx.GetContext(ctx, &processed,
		"SELECT processed FROM inbound_events WHERE provider_event_id = $1", providerEventID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", service.ErrEventNotFound, providerEventID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", service.ErrAlreadyProcessed, providerEventID)
}

// FailedEvents returns the operator queue: processed events whose application
// permanently failed, newest first.
func (s *Store) FailedEvents(ctx context.Context, limit int) ([]models.InboundEvent, error) {
	var events []models.InboundEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT "+eventColumns+` FROM inbound_events
		WHERE processed AND NOT success
		ORDER BY received_at DESC LIMIT $1`, limit)
	return events, err
}

// OrderEvents returns the event history for one order, oldest first. This is
// the order's audit trail: every transition traces back to a row here.
func (s *Store) OrderEvents(ctx context.Context, orderNumber string, limit int) ([]models.InboundEvent, error) {
	var events []models.InboundEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT "+eventColumns+` FROM inbound_events
		WHERE payload->>'order_number' = $1
		ORDER BY received_at ASC LIMIT $2`, orderNumber, limit)
	return events, err
}

// LastEventError returns the most recent permanent failure recorded against
// an order, or "" when its events all applied cleanly.
func (s *Store) LastEventError(ctx context.Context, orderNumber string) (string, error) {
	var msg string
	err := s.db.GetContext(ctx, &msg, `
		SELECT COALESCE(error_message, '') FROM inbound_events
		WHERE processed AND NOT success AND payload->>'order_number' = $1
		ORDER BY received_at DESC LIMIT 1`, orderNumber)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return msg, err
}

// EventStats summarizes the event store for the admin dashboard.
func (s *Store) EventStats(ctx context.Context) (*models.EventStats, error) {
	var stats models.EventStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE processed) AS processed,
			COUNT(*) FILTER (WHERE processed AND NOT success) AS failed,
			COALESCE(AVG(processing_time_ms) FILTER (WHERE processed), 0) AS avg_processing_ms
		FROM inbound_events`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
