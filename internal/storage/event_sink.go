package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fund-ledger/internal/ledger"
)

// EventSink writes ledger events into ClickHouse for off-service analytics.
// Events are written after the owning Postgres transaction commits; the sink
// is an append-only audit trail, not a source of truth.
type EventSink struct {
	db *ClickHouseDB
}

// NewEventSink creates a new event sink
func NewEventSink(db *ClickHouseDB) *EventSink {
	return &EventSink{db: db}
}

// Write inserts a batch of events for one fund
func (s *EventSink) Write(ctx context.Context, fundID string, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.db.Conn().PrepareBatch(ctx, `
		INSERT INTO fund_events (fund_id, event_type, fund_address, attributes, emitted_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}

	for _, event := range events {
		attrs, err := json.Marshal(event.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal event attributes: %w", err)
		}
		if err := batch.Append(
			fundID,
			string(event.Type),
			event.Fund.Hex(),
			string(attrs),
			time.Unix(event.Timestamp, 0).UTC(),
		); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}
	return nil
}
