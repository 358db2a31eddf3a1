package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/pipeline"
)

// WriteEvents archives one kind's raw records in discovery order.
// Uses ON CONFLICT DO NOTHING for idempotency: re-ingesting the same data
// directory leaves the archive unchanged.
//
// The records are stored pre-parse, so a malformed event survives the
// round trip and still shows up in the run's diagnostics after replay.
func (s *Store) WriteEvents(ctx context.Context, kind event.Kind, records []pipeline.SourcedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (kind, seq, record_id, op, ts, payload_slot, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		slot, payload, err := marshalPayload(rec.Raw)
		if err != nil {
			return fmt.Errorf("write events: seq %d: %w", i+1, err)
		}
		if _, err := stmt.ExecContext(ctx, string(kind), int64(i+1), rec.RecordID, rec.Raw.Op, rec.Raw.Timestamp, slot, payload); err != nil {
			return fmt.Errorf("write events: seq %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

// marshalPayload serializes whichever payload the raw record carries and
// names the slot it came from.
func marshalPayload(raw event.Raw) (slot string, payload string, err error) {
	var m map[string]any
	switch {
	case raw.Data != nil:
		slot, m = "data", raw.Data
	case raw.Set != nil:
		slot, m = "set", raw.Set
	default:
		return "none", "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", "", err
	}
	return slot, string(b), nil
}
