// Package oracle provides the yield signal source the engine reads. The
// oracle is a pure data source: reads are per-venue and individually
// fallible, and the engine is expected to skip a failed read rather than
// abort whatever operation triggered the refresh.
package oracle

import (
	"context"

	"github.com/lumenyield/aggregator/internal/types"
)

// YieldOracle reports the current yield for a single venue in basis points.
type YieldOracle interface {
	CurrentYield(ctx context.Context, venue types.VenueAddress) (uint64, error)
}
