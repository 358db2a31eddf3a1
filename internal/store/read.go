package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/pipeline"
)

// ReadEvents returns one kind's archived records in discovery order,
// reconstructed into the same shape the source loader produces. A replay
// from the archive therefore yields the same run output as the original
// ingest.
func (s *Store) ReadEvents(ctx context.Context, kind event.Kind) ([]pipeline.SourcedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, op, ts, payload_slot, payload
		FROM events
		WHERE kind = ?
		ORDER BY seq
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var records []pipeline.SourcedRecord
	for rows.Next() {
		var (
			recordID, op, slot, payload string
			ts                          int64
		)
		if err := rows.Scan(&recordID, &op, &ts, &slot, &payload); err != nil {
			return nil, fmt.Errorf("read events: %w", err)
		}

		raw := event.Raw{Op: op, Timestamp: ts}
		if slot != "none" {
			var fields map[string]any
			dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
			dec.UseNumber()
			if err := dec.Decode(&fields); err != nil {
				return nil, fmt.Errorf("read events: payload for %s: %w", recordID, err)
			}
			switch slot {
			case "data":
				raw.Data = fields
			case "set":
				raw.Set = fields
			default:
				return nil, fmt.Errorf("read events: unknown payload slot %q for %s", slot, recordID)
			}
		}
		records = append(records, pipeline.SourcedRecord{RecordID: recordID, Raw: raw})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return records, nil
}

// ReadAll returns the full archive as pipeline input.
func (s *Store) ReadAll(ctx context.Context) (pipeline.Input, error) {
	input := make(pipeline.Input, len(event.Kinds))
	for _, kind := range event.Kinds {
		records, err := s.ReadEvents(ctx, kind)
		if err != nil {
			return nil, err
		}
		input[kind] = records
	}
	return input, nil
}

// Count returns the number of archived events for a kind.
func (s *Store) Count(ctx context.Context, kind event.Kind) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
