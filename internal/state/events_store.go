// ./internal/state/events_store.go
package state

import (
	"database/sql"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/lumenyield/aggregator/internal/types"
)

// RecordEvent appends one engine event to the journal table.
func RecordEvent(event types.Event) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var amount sql.NullString
	if !event.Amount.IsNil() {
		amount = sql.NullString{String: event.Amount.String(), Valid: true}
	}
	var venue sql.NullString
	if event.Venue != types.ZeroVenue {
		venue = sql.NullString{String: string(event.Venue), Valid: true}
	}
	var detail sql.NullString
	if event.Detail != "" {
		detail = sql.NullString{String: event.Detail, Valid: true}
	}

	stmt := `
		INSERT INTO engine_events (op_id, event_type, venue, amount, yield_bps, detail, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err := DB.Exec(stmt, event.OpID, string(event.Type), venue, amount, event.YieldBps, detail, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.Type, err)
	}
	return nil
}

// GetRecentEvents returns up to limit events, newest first.
func GetRecentEvents(limit int) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT event_id, op_id, event_type, venue, amount, yield_bps, detail, event_timestamp
		FROM engine_events
		ORDER BY event_id DESC
		LIMIT $1;`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			ev        types.Event
			eventType string
			venue     sql.NullString
			amount    sql.NullString
			detail    sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.OpID, &eventType, &venue, &amount, &ev.YieldBps, &detail, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Type = types.EventType(eventType)
		if venue.Valid {
			ev.Venue = types.VenueAddress(venue.String)
		}
		if amount.Valid {
			parsed, ok := sdkmath.NewIntFromString(amount.String)
			if !ok {
				return nil, fmt.Errorf("malformed amount %q in event %d", amount.String, ev.ID)
			}
			ev.Amount = parsed
		}
		if detail.Valid {
			ev.Detail = detail.String
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}
