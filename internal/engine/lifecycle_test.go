package engine

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/lumenyield/aggregator/internal/types"
)

func TestAddVenue(t *testing.T) {
	h := newTestEngine(t, defaultTestParams())
	ctx := context.Background()

	require.NoError(t, h.engine.AddVenue(ctx, adminCaller, venueA, 300))

	rec, err := h.engine.Venue(venueA)
	require.NoError(t, err)
	require.True(t, rec.Active)
	require.True(t, rec.Allocation.IsZero())
	require.Equal(t, uint64(300), rec.ReportedYieldBps)

	// Duplicates, empty addresses, and unauthorized callers are rejected.
	require.ErrorIs(t, h.engine.AddVenue(ctx, adminCaller, venueA, 400), ErrVenueExists)
	require.ErrorIs(t, h.engine.AddVenue(ctx, adminCaller, types.ZeroVenue, 400), ErrInvalidAddress)
	require.ErrorIs(t, h.engine.AddVenue(ctx, vaultCaller, venueB, 400), ErrUnauthorized)

	// The yield bound is inclusive.
	require.NoError(t, h.engine.AddVenue(ctx, adminCaller, venueB, types.MaxYieldBps))
	require.ErrorIs(t, h.engine.AddVenue(ctx, adminCaller, venueC, types.MaxYieldBps+1), ErrYieldOutOfRange)
}

func TestAddVenueRegistryCapacity(t *testing.T) {
	params := defaultTestParams()
	params.RegistryCapacity = 2
	h := newTestEngine(t, params)
	ctx := context.Background()

	require.NoError(t, h.engine.AddVenue(ctx, adminCaller, venueA, 300))
	require.NoError(t, h.engine.AddVenue(ctx, adminCaller, venueB, 500))
	require.ErrorIs(t, h.engine.AddVenue(ctx, adminCaller, venueC, 800), ErrRegistryFull)
}

func TestRemoveVenueDrainsAllocation(t *testing.T) {
	params := defaultTestParams()
	params.Limits.MaxVenueAllocationBps = 10_000
	h := newThreeVenueEngine(t, params)
	ctx := context.Background()

	_, err := h.engine.Allocate(ctx, vaultCaller, sdkmath.NewInt(10_000))
	require.NoError(t, err)
	require.True(t, h.allocation(t, venueC).Equal(sdkmath.NewInt(10_000)))

	h.token.Credit(sdkmath.NewInt(10_000))
	require.NoError(t, h.engine.RemoveVenue(ctx, adminCaller, venueC))

	_, err = h.engine.Venue(venueC)
	require.ErrorIs(t, err, ErrVenueNotFound)
	require.True(t, h.engine.TotalAllocated().IsZero())
	require.Len(t, h.engine.Snapshot().Venues, 2)

	// The drained capital went back to the vault.
	require.Len(t, h.token.Transfers, 1)
	require.Equal(t, vaultCaller, h.token.Transfers[0].To)
	require.True(t, h.token.Transfers[0].Amount.Equal(sdkmath.NewInt(10_000)))

	require.ErrorIs(t, h.engine.RemoveVenue(ctx, adminCaller, venueC), ErrVenueNotFound)
	require.ErrorIs(t, h.engine.RemoveVenue(ctx, vaultCaller, venueA), ErrUnauthorized)
}

func TestWithdrawForVaultDrainsLowestYieldFirst(t *testing.T) {
	params := defaultTestParams()
	params.Limits.MinAllocation = sdkmath.NewInt(1)
	h := newTestEngine(t, params)
	h.addVenue(t, venueA, 800)
	h.addVenue(t, venueB, 500)
	ctx := context.Background()

	_, err := h.engine.Allocate(ctx, vaultCaller, sdkmath.NewInt(10_000))
	require.NoError(t, err)

	h.token.Credit(sdkmath.NewInt(6_000))
	require.NoError(t, h.engine.WithdrawForVault(ctx, vaultCaller, sdkmath.NewInt(6_000)))

	// The lowest-yield venue empties first; the best keeps its capital for
	// as long as possible.
	require.True(t, h.allocation(t, venueB).IsZero())
	require.True(t, h.allocation(t, venueA).Equal(sdkmath.NewInt(4_000)))
	require.True(t, h.engine.TotalAllocated().Equal(sdkmath.NewInt(4_000)))
	h.requireConsistent(t)

	require.Len(t, h.token.Transfers, 1)
	require.Equal(t, vaultCaller, h.token.Transfers[0].To)
	require.True(t, h.token.Transfers[0].Amount.Equal(sdkmath.NewInt(6_000)))
}

func TestWithdrawForVaultRejections(t *testing.T) {
	h := newThreeVenueEngine(t, defaultTestParams())
	ctx := context.Background()

	_, err := h.engine.Allocate(ctx, vaultCaller, sdkmath.NewInt(10_000))
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.WithdrawForVault(ctx, adminCaller, sdkmath.NewInt(1_000)), ErrUnauthorized)
	require.ErrorIs(t, h.engine.WithdrawForVault(ctx, vaultCaller, sdkmath.ZeroInt()), ErrInvalidAmount)
	require.ErrorIs(t, h.engine.WithdrawForVault(ctx, vaultCaller, sdkmath.NewInt(20_000)), ErrInsufficientFunds)

	// Nothing moved on any rejection.
	require.True(t, h.engine.TotalAllocated().Equal(sdkmath.NewInt(10_000)))
	h.requireConsistent(t)
}

func TestWithdrawForVaultWorksWhilePaused(t *testing.T) {
	h := newThreeVenueEngine(t, defaultTestParams())
	ctx := context.Background()

	_, err := h.engine.Allocate(ctx, vaultCaller, sdkmath.NewInt(10_000))
	require.NoError(t, err)

	require.NoError(t, h.engine.Pause(ctx, adminCaller))

	h.token.Credit(sdkmath.NewInt(4_000))
	require.NoError(t, h.engine.WithdrawForVault(ctx, vaultCaller, sdkmath.NewInt(4_000)))
	require.True(t, h.engine.TotalAllocated().Equal(sdkmath.NewInt(6_000)))
}

func TestEmergencyUnwindAll(t *testing.T) {
	params := defaultTestParams()
	params.Limits.MinAllocation = sdkmath.NewInt(1)
	h := newThreeVenueEngine(t, params)
	ctx := context.Background()

	_, err := h.engine.Allocate(ctx, vaultCaller, sdkmath.NewInt(10_000))
	require.NoError(t, err)

	h.token.Credit(sdkmath.NewInt(3_000))
	require.ErrorIs(t, h.engine.EmergencyUnwindAll(ctx, vaultCaller), ErrUnauthorized)
	require.NoError(t, h.engine.EmergencyUnwindAll(ctx, adminCaller))

	// Every venue is empty but stays registered and active; the engine's
	// whole asset balance went to the vault.
	require.True(t, h.engine.TotalAllocated().IsZero())
	for _, rec := range h.engine.Snapshot().Venues {
		require.True(t, rec.Allocation.IsZero())
		require.True(t, rec.Active)
	}
	require.Len(t, h.engine.Snapshot().Venues, 3)

	require.Len(t, h.token.Transfers, 1)
	require.Equal(t, vaultCaller, h.token.Transfers[0].To)
	require.True(t, h.token.Transfers[0].Amount.Equal(sdkmath.NewInt(3_000)))
	require.Equal(t, 1, h.journal.countType(types.EventEmergencyUnwind))
}

func TestPauseUnpause(t *testing.T) {
	h := newThreeVenueEngine(t, defaultTestParams())
	ctx := context.Background()

	require.ErrorIs(t, h.engine.Pause(ctx, vaultCaller), ErrUnauthorized)
	require.NoError(t, h.engine.Pause(ctx, adminCaller))
	require.True(t, h.engine.Snapshot().Paused)

	_, err := h.engine.Allocate(ctx, vaultCaller, sdkmath.NewInt(1_000))
	require.ErrorIs(t, err, ErrPaused)

	require.NoError(t, h.engine.Unpause(ctx, adminCaller))
	require.False(t, h.engine.Snapshot().Paused)

	_, err = h.engine.Allocate(ctx, vaultCaller, sdkmath.NewInt(1_000))
	require.NoError(t, err)
}

func TestSetAllocationLimits(t *testing.T) {
	h := newThreeVenueEngine(t, defaultTestParams())
	ctx := context.Background()

	updated := types.AllocationLimits{
		MaxVenueAllocationBps: 2_500,
		MinAllocation:         sdkmath.NewInt(500),
	}
	require.ErrorIs(t, h.engine.SetAllocationLimits(ctx, vaultCaller, updated), ErrUnauthorized)
	require.NoError(t, h.engine.SetAllocationLimits(ctx, adminCaller, updated))
	require.Equal(t, uint64(2_500), h.engine.Snapshot().Limits.MaxVenueAllocationBps)

	invalid := types.AllocationLimits{MaxVenueAllocationBps: 0, MinAllocation: sdkmath.NewInt(1)}
	require.ErrorIs(t, h.engine.SetAllocationLimits(ctx, adminCaller, invalid), types.ErrInvalidBasisPoints)
	require.Equal(t, uint64(2_500), h.engine.Snapshot().Limits.MaxVenueAllocationBps)
}

func TestSetRebalancePolicy(t *testing.T) {
	h := newThreeVenueEngine(t, defaultTestParams())
	ctx := context.Background()

	updated := types.RebalancePolicy{
		MinSlippageBps: 20,
		MaxSlippageBps: 200,
		ThresholdBps:   250,
		Cooldown:       2 * time.Hour,
	}
	require.ErrorIs(t, h.engine.SetRebalancePolicy(ctx, vaultCaller, updated), ErrUnauthorized)
	require.NoError(t, h.engine.SetRebalancePolicy(ctx, adminCaller, updated))
	require.Equal(t, 2*time.Hour, h.engine.Snapshot().Policy.Cooldown)

	invalid := updated
	invalid.MinSlippageBps = 500
	require.ErrorIs(t, h.engine.SetRebalancePolicy(ctx, adminCaller, invalid), types.ErrInvalidSlippageBound)
	require.Equal(t, uint64(250), h.engine.Snapshot().Policy.ThresholdBps)
}
