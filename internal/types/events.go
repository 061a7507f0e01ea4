/*

This file contains the event notifications emitted by the allocation engine.
Events are the engine's audit trail: every state-changing decision produces
one, and they are journalled to the database and queryable over the read API.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventType names a class of engine notification.
type EventType string

const (
	EventYieldUpdated       EventType = "YIELD_UPDATED"
	EventCapitalAllocated   EventType = "CAPITAL_ALLOCATED"
	EventEscapeValve        EventType = "ESCAPE_VALVE"
	EventRebalanceMove      EventType = "REBALANCE_MOVE"
	EventRebalanceCompleted EventType = "REBALANCE_COMPLETED"
	EventVaultWithdrawal    EventType = "VAULT_WITHDRAWAL"
	EventVenueAdded         EventType = "VENUE_ADDED"
	EventVenueRemoved       EventType = "VENUE_REMOVED"
	EventEmergencyUnwind    EventType = "EMERGENCY_UNWIND"
	EventPaused             EventType = "PAUSED"
	EventUnpaused           EventType = "UNPAUSED"
	EventLimitsUpdated      EventType = "LIMITS_UPDATED"
	EventPolicyUpdated      EventType = "POLICY_UPDATED"
)

// Event is a single engine notification. OpID ties together all events
// emitted within one atomic operation.
type Event struct {
	ID        int64        `json:"id,omitempty"` // assigned by the journal
	OpID      string       `json:"op_id"`
	Type      EventType    `json:"type"`
	Venue     VenueAddress `json:"venue,omitempty"`
	Amount    sdkmath.Int  `json:"amount,omitempty"`
	YieldBps  uint64       `json:"yield_bps,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
