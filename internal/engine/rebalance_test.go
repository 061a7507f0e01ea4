package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/lumenyield/aggregator/internal/types"
)

// fundedForRebalance builds the standard situation: capital split evenly
// between the top two venues, then the yield ordering flips so both become
// laggards behind the third.
func fundedForRebalance(t *testing.T) *testHarness {
	t.Helper()
	params := defaultTestParams()
	params.Limits.MinAllocation = sdkmath.NewInt(1)
	h := newTestEngine(t, params)
	h.addVenue(t, venueA, 800)
	h.addVenue(t, venueB, 500)
	h.addVenue(t, venueC, 300)

	_, err := h.engine.Allocate(context.Background(), vaultCaller, sdkmath.NewInt(10_000))
	require.NoError(t, err)
	require.True(t, h.allocation(t, venueA).Equal(sdkmath.NewInt(5_000)))
	require.True(t, h.allocation(t, venueB).Equal(sdkmath.NewInt(5_000)))

	h.oracle.Set(venueA, 300)
	h.oracle.Set(venueB, 500)
	h.oracle.Set(venueC, 800)
	return h
}

func TestRebalanceMovesHalfOfEachLaggard(t *testing.T) {
	h := fundedForRebalance(t)

	result, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Equal(t, venueC, result.BestVenue)
	require.Equal(t, uint64(800), result.BestYieldBps)
	require.Len(t, result.Moves, 2)

	// Each laggard gives up exactly half; both halves land in the new best
	// venue, which stays under its cap throughout.
	require.True(t, h.allocation(t, venueA).Equal(sdkmath.NewInt(2_500)))
	require.True(t, h.allocation(t, venueB).Equal(sdkmath.NewInt(2_500)))
	require.True(t, h.allocation(t, venueC).Equal(sdkmath.NewInt(5_000)))
	require.True(t, h.engine.TotalAllocated().Equal(sdkmath.NewInt(10_000)))
	h.requireConsistent(t)

	require.Equal(t, 2, h.journal.countType(types.EventRebalanceMove))
	require.Equal(t, 1, h.journal.countType(types.EventRebalanceCompleted))
}

func TestRebalanceCooldownIsSilentNoOp(t *testing.T) {
	h := fundedForRebalance(t)

	result, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.False(t, result.Skipped)

	// Inside the cooldown window a second call does nothing and reports why.
	h.advance(30 * time.Minute)
	second, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, second.Skipped)
	require.Equal(t, "cooldown", second.Reason)
	require.Equal(t, 1, h.journal.countType(types.EventRebalanceCompleted))

	// Past the window it runs again. With the yields converged there is
	// nothing left to move, but the call is no longer gated.
	h.oracle.Set(venueA, 800)
	h.oracle.Set(venueB, 800)
	h.advance(31 * time.Minute)
	third, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, third.Skipped)
	require.Equal(t, "no laggards", third.Reason)
}

func TestRebalanceThresholdBoundary(t *testing.T) {
	params := defaultTestParams()
	params.Limits.MinAllocation = sdkmath.NewInt(1)
	h := newTestEngine(t, params)
	h.addVenue(t, venueA, 800)
	h.addVenue(t, venueB, 500)
	h.addVenue(t, venueC, 300)

	_, err := h.engine.Allocate(context.Background(), vaultCaller, sdkmath.NewInt(10_000))
	require.NoError(t, err)
	require.True(t, h.allocation(t, venueA).Equal(sdkmath.NewInt(5_000)))
	require.True(t, h.allocation(t, venueB).Equal(sdkmath.NewInt(5_000)))

	// Both funded venues trail the new best by exactly the 100 bps
	// threshold: not enough, the comparison is strict.
	h.oracle.Set(venueA, 700)
	h.oracle.Set(venueB, 700)
	h.oracle.Set(venueC, 800)
	result, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, "no laggards", result.Reason)

	// One basis point past the threshold triggers the move, and only for
	// the venue that crossed it.
	h.oracle.Set(venueB, 699)
	result, err = h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Len(t, result.Moves, 1)
	require.Equal(t, venueB, result.Moves[0].From)
	require.True(t, h.allocation(t, venueA).Equal(sdkmath.NewInt(5_000)))
	require.True(t, h.allocation(t, venueB).Equal(sdkmath.NewInt(2_500)))
	require.True(t, h.allocation(t, venueC).Equal(sdkmath.NewInt(2_500)))
	h.requireConsistent(t)
}

func TestRebalanceSkipsDustCorrections(t *testing.T) {
	h := fundedForRebalance(t)

	// Raise the dust floor above half of any laggard's allocation: every
	// marked correction is dust, nothing moves, and the cooldown clock does
	// not advance.
	require.NoError(t, h.engine.SetAllocationLimits(context.Background(), adminCaller, types.AllocationLimits{
		MaxVenueAllocationBps: 5_000,
		MinAllocation:         sdkmath.NewInt(3_000),
	}))

	result, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, "all corrections below dust floor", result.Reason)
	require.True(t, h.allocation(t, venueA).Equal(sdkmath.NewInt(5_000)))
	require.True(t, h.engine.Snapshot().LastRebalanceTime.IsZero())
}

func TestRebalanceAbortsCleanlyOnWithdrawFailure(t *testing.T) {
	h := fundedForRebalance(t)

	failure := errors.New("venue withdrawal suspended")
	h.venues.Venue(venueA).FailWithdraw = failure

	_, err := h.engine.Rebalance(context.Background(), "anyone")
	require.ErrorIs(t, err, failure)

	// Nothing committed: allocations, total, and the cooldown clock are all
	// as they were.
	require.True(t, h.allocation(t, venueA).Equal(sdkmath.NewInt(5_000)))
	require.True(t, h.allocation(t, venueB).Equal(sdkmath.NewInt(5_000)))
	require.True(t, h.allocation(t, venueC).IsZero())
	require.True(t, h.engine.TotalAllocated().Equal(sdkmath.NewInt(10_000)))
	require.True(t, h.engine.Snapshot().LastRebalanceTime.IsZero())
	require.Equal(t, 0, h.journal.countType(types.EventRebalanceCompleted))
}

func TestRebalanceEmptyRegistrySkips(t *testing.T) {
	h := newTestEngine(t, defaultTestParams())

	result, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, "no venues registered", result.Reason)
}

func TestRebalanceRunsWhilePaused(t *testing.T) {
	h := fundedForRebalance(t)
	require.NoError(t, h.engine.Pause(context.Background(), adminCaller))

	result, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Len(t, result.Moves, 2)
}

func TestRebalanceUsesRefreshedYields(t *testing.T) {
	h := fundedForRebalance(t)

	// The oracle flipped the ordering after funding; the rebalancer must act
	// on the refreshed yields, not the stale records.
	recBefore, err := h.engine.Venue(venueA)
	require.NoError(t, err)
	require.Equal(t, uint64(800), recBefore.ReportedYieldBps)

	result, err := h.engine.Rebalance(context.Background(), "anyone")
	require.NoError(t, err)
	require.Equal(t, venueC, result.BestVenue)

	recAfter, err := h.engine.Venue(venueA)
	require.NoError(t, err)
	require.Equal(t, uint64(300), recAfter.ReportedYieldBps)
}
