/*

Lifecycle and safety controls: venue registration and removal, policy and
limit administration, pause/unpause, the vault withdrawal path, and the
emergency full unwind.

Per venue the lifecycle is:

	unregistered -> active(allocation=0) -> active(allocation>0)
	            <-> active(allocation=0) -> removed

No venue may reach removed with a nonzero allocation: removal drains the
venue in full first, fail-fast on the external withdraw.

*/

package engine

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/lumenyield/aggregator/internal/types"
)

// AddVenue registers a new venue with an admin-supplied initial yield.
func (e *Engine) AddVenue(ctx context.Context, caller string, addr types.VenueAddress, initialYieldBps uint64) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	log, opID := e.opLogger("add_venue", caller)
	_ = ctx

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if addr == types.ZeroVenue {
		return ErrInvalidAddress
	}
	if initialYieldBps > types.MaxYieldBps {
		return fmt.Errorf("%w: %d bps", ErrYieldOutOfRange, initialYieldBps)
	}

	rec := types.VenueRecord{
		Address:          addr,
		ReportedYieldBps: initialYieldBps,
		Allocation:       sdkmath.ZeroInt(),
		LastUpdated:      e.now(),
		Active:           true,
	}
	if err := e.reg.add(rec); err != nil {
		return err
	}

	e.emit(types.Event{OpID: opID, Type: types.EventVenueAdded, Venue: addr, YieldBps: initialYieldBps})
	e.updateGauges()
	e.checkpointLocked()

	log.Info().
		Str("venue", string(addr)).
		Uint64("initialYieldBps", initialYieldBps).
		Int("registered", e.reg.len()).
		Msg("Venue added")
	return nil
}

// RemoveVenue drains a venue's allocation in full, forwards the capital to
// the vault, and compacts the record out of the registry.
func (e *Engine) RemoveVenue(ctx context.Context, caller string, addr types.VenueAddress) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	log, opID := e.opLogger("remove_venue", caller)

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	rec, ok := e.reg.get(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrVenueNotFound, addr)
	}

	drained := sdkmath.ZeroInt()
	if rec.Allocation.IsPositive() {
		amount := rec.Allocation
		v, err := e.venues.Lookup(addr)
		if err != nil {
			return fmt.Errorf("venue %s unavailable: %w", addr, err)
		}
		if err := v.Withdraw(ctx, amount); err != nil {
			return fmt.Errorf("withdraw from venue %s failed: %w", addr, err)
		}
		if err := e.asset.Transfer(ctx, e.vaultAccount, amount); err != nil {
			return fmt.Errorf("transfer to vault failed: %w", err)
		}
		rec.Allocation = sdkmath.ZeroInt()
		e.totalAllocated = e.totalAllocated.Sub(amount)
		drained = amount
	}

	rec.Active = false
	if err := e.reg.remove(addr); err != nil {
		return err
	}

	e.emit(types.Event{OpID: opID, Type: types.EventVenueRemoved, Venue: addr, Amount: drained})
	e.updateGauges()
	e.checkpointLocked()

	log.Info().
		Str("venue", string(addr)).
		Str("drained", drained.String()).
		Int("registered", e.reg.len()).
		Msg("Venue removed")
	return nil
}

// WithdrawForVault pulls capital out of venues to satisfy a vault-side
// withdrawal shortfall and forwards it to the vault. Lowest-yield venues are
// drained first so the best-earning capital stays deployed. Available while
// paused: capital can always be pulled out during an incident.
func (e *Engine) WithdrawForVault(ctx context.Context, caller string, amount sdkmath.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	log, opID := e.opLogger("withdraw_for_vault", caller)

	if err := e.requireVault(caller); err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GT(e.totalAllocated) {
		return fmt.Errorf("%w: requested %s, allocated %s", ErrInsufficientFunds, amount, e.totalAllocated)
	}

	staged := e.reg.clone()
	stagedTotal := e.totalAllocated
	remaining := amount

	order := staged.sortedByYieldDesc()
	for i := len(order) - 1; i >= 0 && remaining.IsPositive(); i-- {
		rec := order[i]
		if !rec.Allocation.IsPositive() {
			continue
		}
		take := sdkmath.MinInt(remaining, rec.Allocation)
		v, err := e.venues.Lookup(rec.Address)
		if err != nil {
			return fmt.Errorf("venue %s unavailable: %w", rec.Address, err)
		}
		if err := v.Withdraw(ctx, take); err != nil {
			log.Error().Err(err).Str("venue", string(rec.Address)).Msg("Vault withdrawal aborted, no state change retained")
			return fmt.Errorf("withdraw from venue %s failed: %w", rec.Address, err)
		}
		rec.Allocation = rec.Allocation.Sub(take)
		stagedTotal = stagedTotal.Sub(take)
		remaining = remaining.Sub(take)
	}

	if err := e.asset.Transfer(ctx, e.vaultAccount, amount); err != nil {
		return fmt.Errorf("transfer to vault failed: %w", err)
	}

	e.reg = staged
	e.totalAllocated = stagedTotal

	e.emit(types.Event{OpID: opID, Type: types.EventVaultWithdrawal, Amount: amount})
	if e.metrics != nil {
		e.metrics.VaultWithdrawalsTotal.Inc()
	}
	e.updateGauges()
	e.checkpointLocked()

	log.Info().
		Str("amount", amount.String()).
		Str("totalAllocated", e.totalAllocated.String()).
		Msg("Capital withdrawn for vault")
	return nil
}

// EmergencyUnwindAll withdraws every venue's full allocation back to the
// engine and forwards the engine's entire asset balance to the vault. A
// circuit breaker, not decommissioning: venues stay registered and active,
// just empty.
func (e *Engine) EmergencyUnwindAll(ctx context.Context, caller string) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	log, opID := e.opLogger("emergency_unwind", caller)

	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	staged := e.reg.clone()
	for i := range staged.records {
		rec := &staged.records[i]
		if !rec.Active || !rec.Allocation.IsPositive() {
			continue
		}
		v, err := e.venues.Lookup(rec.Address)
		if err != nil {
			return fmt.Errorf("venue %s unavailable: %w", rec.Address, err)
		}
		if err := v.Withdraw(ctx, rec.Allocation); err != nil {
			log.Error().Err(err).Str("venue", string(rec.Address)).Msg("Emergency unwind aborted, no state change retained")
			return fmt.Errorf("withdraw from venue %s failed: %w", rec.Address, err)
		}
		rec.Allocation = sdkmath.ZeroInt()
	}

	balance, err := e.asset.Balance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read engine asset balance: %w", err)
	}
	if balance.IsPositive() {
		if err := e.asset.Transfer(ctx, e.vaultAccount, balance); err != nil {
			return fmt.Errorf("transfer to vault failed: %w", err)
		}
	}

	e.reg = staged
	e.totalAllocated = sdkmath.ZeroInt()

	e.emit(types.Event{OpID: opID, Type: types.EventEmergencyUnwind, Amount: balance})
	if e.metrics != nil {
		e.metrics.EmergencyUnwindsTotal.Inc()
	}
	e.updateGauges()
	e.checkpointLocked()

	log.Warn().
		Str("forwarded", balance.String()).
		Msg("Emergency unwind completed, all venue allocations drained")
	return nil
}

// SetAllocationLimits replaces the concentration cap and dust floor.
func (e *Engine) SetAllocationLimits(ctx context.Context, caller string, limits types.AllocationLimits) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	_ = ctx

	log, opID := e.opLogger("set_allocation_limits", caller)

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := limits.Validate(); err != nil {
		return err
	}

	e.limits = limits
	e.emit(types.Event{
		OpID:   opID,
		Type:   types.EventLimitsUpdated,
		Detail: fmt.Sprintf("cap %d bps, dust floor %s", limits.MaxVenueAllocationBps, limits.MinAllocation),
	})
	e.checkpointLocked()

	log.Info().
		Uint64("maxVenueAllocationBps", limits.MaxVenueAllocationBps).
		Str("minAllocation", limits.MinAllocation.String()).
		Msg("Allocation limits updated")
	return nil
}

// SetRebalancePolicy replaces the rebalance guardrails, threshold and cooldown.
func (e *Engine) SetRebalancePolicy(ctx context.Context, caller string, policy types.RebalancePolicy) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	_ = ctx

	log, opID := e.opLogger("set_rebalance_policy", caller)

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	e.policy = policy
	e.emit(types.Event{
		OpID:   opID,
		Type:   types.EventPolicyUpdated,
		Detail: fmt.Sprintf("threshold %d bps, cooldown %s", policy.ThresholdBps, policy.Cooldown),
	})
	e.checkpointLocked()

	log.Info().
		Uint64("thresholdBps", policy.ThresholdBps).
		Dur("cooldown", policy.Cooldown).
		Msg("Rebalance policy updated")
	return nil
}

// Pause blocks Allocate. Rebalance and every withdrawal path stay available
// so capital can still be pulled out during an incident.
func (e *Engine) Pause(ctx context.Context, caller string) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	_ = ctx

	log, opID := e.opLogger("pause", caller)
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.paused = true
	e.emit(types.Event{OpID: opID, Type: types.EventPaused})
	e.checkpointLocked()
	log.Warn().Msg("Engine paused, allocations blocked")
	return nil
}

// Unpause lifts the allocation block.
func (e *Engine) Unpause(ctx context.Context, caller string) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	_ = ctx

	log, opID := e.opLogger("unpause", caller)
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.paused = false
	e.emit(types.Event{OpID: opID, Type: types.EventUnpaused})
	e.checkpointLocked()
	log.Info().Msg("Engine unpaused")
	return nil
}
