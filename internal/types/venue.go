/*

This file contains the custom types for yield venues, the durable records the
allocation engine keeps for each one, and the plan/result types produced by the
distribution and rebalancing logic.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// VenueAddress is the opaque identifier of an external yield venue. It is
// immutable once a record is created.
type VenueAddress string

// ZeroVenue is returned by selectors when no active venue exists.
const ZeroVenue VenueAddress = ""

const (
	// BpsDenominator is the basis-point scale: 10,000 bps = 100%.
	BpsDenominator int64 = 10_000

	// MaxYieldBps is the upper bound on a reported yield (500%). Anything
	// above it is treated as a bad signal and rejected.
	MaxYieldBps uint64 = 50_000
)

// VenueRecord is the engine's durable record for a single registered venue.
type VenueRecord struct {
	Address          VenueAddress `json:"address"`
	ReportedYieldBps uint64       `json:"reported_yield_bps"` // refreshed from the oracle
	Allocation       sdkmath.Int  `json:"allocation"`         // capital currently placed with this venue, in asset base units
	LastUpdated      time.Time    `json:"last_updated"`       // timestamp of the last yield refresh
	Active           bool         `json:"active"`
}

// AllocationBpsOf returns this venue's share of the given total in basis
// points, truncating. Zero when the total is zero.
func (r VenueRecord) AllocationBpsOf(total sdkmath.Int) uint64 {
	if total.IsNil() || !total.IsPositive() || r.Allocation.IsNil() {
		return 0
	}
	return r.Allocation.MulRaw(BpsDenominator).Quo(total).Uint64()
}

// RegistryView is a point-in-time snapshot of the full engine state exposed
// on the read surface.
type RegistryView struct {
	Venues            []VenueRecord    `json:"venues"`
	TotalAllocated    sdkmath.Int      `json:"total_allocated"`
	Capacity          int              `json:"capacity"`
	Paused            bool             `json:"paused"`
	LastRebalanceTime time.Time        `json:"last_rebalance_time"`
	Limits            AllocationLimits `json:"limits"`
	Policy            RebalancePolicy  `json:"policy"`
}

// Placement is a single venue deposit decided by the distributor.
type Placement struct {
	Address     VenueAddress `json:"address"`
	Amount      sdkmath.Int  `json:"amount"`
	YieldBps    uint64       `json:"yield_bps"`
	EscapeValve bool         `json:"escape_valve,omitempty"` // amount forced past the cap because every venue was full
}

// DistributionPlan is the outcome of the capped greedy distribution for one
// requested amount. The sum of placement amounts always equals Requested.
type DistributionPlan struct {
	Requested       sdkmath.Int `json:"requested"`
	Placements      []Placement `json:"placements"`
	EscapeValveUsed bool        `json:"escape_valve_used"`
}

// RebalanceMove records one laggard correction: half of the laggard's capital
// withdrawn and re-deposited through the capped distribution path.
type RebalanceMove struct {
	From       VenueAddress `json:"from"`
	Amount     sdkmath.Int  `json:"amount"`
	Placements []Placement  `json:"placements"`
}

// RebalanceResult reports what a rebalance call did. A skipped call is not an
// error; Reason says why nothing happened.
type RebalanceResult struct {
	Skipped      bool            `json:"skipped"`
	Reason       string          `json:"reason,omitempty"`
	BestVenue    VenueAddress    `json:"best_venue,omitempty"`
	BestYieldBps uint64          `json:"best_yield_bps,omitempty"`
	Moves        []RebalanceMove `json:"moves,omitempty"`
}

// EngineSnapshot is the durable state persisted after every mutating
// operation and restored at startup.
type EngineSnapshot struct {
	Venues            []VenueRecord    `json:"venues"`
	TotalAllocated    sdkmath.Int      `json:"total_allocated"`
	LastRebalanceTime time.Time        `json:"last_rebalance_time"`
	Paused            bool             `json:"paused"`
	Limits            AllocationLimits `json:"limits"`
	Policy            RebalancePolicy  `json:"policy"`
}
