// Package venue defines the engine's view of external capital destinations
// and of the single underlying asset. Venues are opaque deposit/withdraw
// targets: a call either fully succeeds or fails, and a failure aborts the
// engine operation that issued it. There are no partial-fill semantics.
package venue

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/lumenyield/aggregator/internal/types"
)

// Venue is one external yield-bearing destination.
type Venue interface {
	// Deposit places amount of the asset with the venue.
	Deposit(ctx context.Context, amount sdkmath.Int) error

	// Withdraw pulls amount of the asset back from the venue.
	Withdraw(ctx context.Context, amount sdkmath.Int) error

	// Balance reports the asset amount the venue currently holds for the engine.
	Balance(ctx context.Context) (sdkmath.Int, error)
}

// Directory resolves a registered venue address to its client.
type Directory interface {
	Lookup(addr types.VenueAddress) (Venue, error)
}

// AssetToken moves the underlying asset on behalf of the engine's own
// account. Deposits follow the approve-then-call pattern.
type AssetToken interface {
	// Approve authorizes spender to pull amount from the engine.
	Approve(ctx context.Context, spender types.VenueAddress, amount sdkmath.Int) error

	// Transfer sends amount from the engine to another account.
	Transfer(ctx context.Context, to string, amount sdkmath.Int) error

	// Balance reports the engine's liquid (unallocated) asset balance.
	Balance(ctx context.Context) (sdkmath.Int, error)
}
