/*

This file contains the default engine parameters.

These defaults are calibrated for pooled capital spread across a handful of
external yield venues. Each value balances concentration risk against keeping
capital productive.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/lumenyield/aggregator/internal/types"
)

// DefaultEngineParameters provides the baseline engine configuration. These
// values are used when no persisted state exists in the database at startup.
var DefaultEngineParameters = types.EngineParameters{
	RegistryCapacity: 20, // Track up to 20 venues.
	// Rationale: more venues than that and the long tail stops mattering;
	// every extra venue is another external dependency to monitor.

	Limits: types.AllocationLimits{
		MaxVenueAllocationBps: 5_000, // At most 50% of capital in one venue.
		// Rationale: a single venue failure must never take more than half
		// the pool. The escape valve can exceed this only when every venue
		// is already at its cap.

		MinAllocation: sdkmath.NewInt(1_000), // Skip fills below 1,000 base units.
		// Rationale: dust positions cost more in transaction overhead than
		// they ever earn. Below this size a fill is not worth the move.
	},

	Policy: types.RebalancePolicy{
		ThresholdBps: 100, // Move capital when a venue trails the best by >1%.
		// Rationale: yield reports are noisy; a 100 bps band stops the
		// rebalancer from chasing noise while still catching real drift.

		Cooldown: time.Hour, // At most one effective rebalance per hour.
		// Rationale: oscillating yields would otherwise cause thrashing,
		// paying withdrawal and deposit costs on every flip.

		MinSlippageBps: 10,
		MaxSlippageBps: 300, // Tolerate at most 3% slippage on moves.
		// Rationale: better to skip a correction than lose capital to a
		// thin market.
	},
}
