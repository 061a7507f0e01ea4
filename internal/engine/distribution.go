/*

Capped greedy distribution.

Given an amount of fresh capital, the distributor first tries to place all of
it with the single best venue under the concentration cap. When the cap would
be breached it walks the venues in descending yield order, filling each up to
its cap, skipping fills below the dust floor. If every venue is at its cap
with capital still unplaced, the escape valve forces the remainder into the
best venue past its cap: keeping capital productive beats strict cap
adherence in that degenerate case, and it is the only path by which the cap
invariant may be violated.

All math is integer basis points with truncating division, so rounding leaves
base units unallocated rather than over-allocating.

*/

package engine

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/lumenyield/aggregator/internal/types"
)

// planDistribution computes placements for amount against the given registry
// state. Pure: it never mutates the registry or performs external calls.
func planDistribution(reg *registry, total sdkmath.Int, limits types.AllocationLimits, amount sdkmath.Int) (types.DistributionPlan, error) {
	best, bestYield := reg.best()
	if best == types.ZeroVenue {
		return types.DistributionPlan{}, ErrNoVenues
	}

	// The cap is computed against the post-allocation total, fixed for the
	// whole distribution.
	postTotal := total.Add(amount)
	cap := postTotal.MulRaw(int64(limits.MaxVenueAllocationBps)).QuoRaw(types.BpsDenominator)

	plan := types.DistributionPlan{Requested: amount}

	bestRec, _ := reg.get(best)
	if bestRec.Allocation.Add(amount).LTE(cap) {
		// Simple path: the whole amount fits in the best venue.
		plan.Placements = []types.Placement{{
			Address:  best,
			Amount:   amount,
			YieldBps: bestYield,
		}}
		return plan, nil
	}

	remaining := amount
	for _, rec := range reg.sortedByYieldDesc() {
		if remaining.IsZero() {
			break
		}
		available := cap.Sub(rec.Allocation)
		if !available.IsPositive() {
			continue
		}
		if available.LT(limits.MinAllocation) {
			// Dust floor: a fill this small is not worth the move.
			continue
		}
		place := sdkmath.MinInt(remaining, available)
		plan.Placements = append(plan.Placements, types.Placement{
			Address:  rec.Address,
			Amount:   place,
			YieldBps: rec.ReportedYieldBps,
		})
		remaining = remaining.Sub(place)
	}

	if remaining.IsPositive() {
		// Escape valve: every venue at its cap, force the rest into the best.
		plan.EscapeValveUsed = true
		merged := false
		for i := range plan.Placements {
			if plan.Placements[i].Address == best {
				plan.Placements[i].Amount = plan.Placements[i].Amount.Add(remaining)
				plan.Placements[i].EscapeValve = true
				merged = true
				break
			}
		}
		if !merged {
			plan.Placements = append(plan.Placements, types.Placement{
				Address:     best,
				Amount:      remaining,
				YieldBps:    bestYield,
				EscapeValve: true,
			})
		}
	}

	return plan, nil
}

// executePlacements performs the external approve-then-deposit call for every
// placement. Fail-fast: the first rejection aborts, and the caller must not
// have mutated any engine state yet.
func (e *Engine) executePlacements(ctx context.Context, placements []types.Placement) error {
	for _, p := range placements {
		v, err := e.venues.Lookup(p.Address)
		if err != nil {
			return fmt.Errorf("venue %s unavailable: %w", p.Address, err)
		}
		if err := e.asset.Approve(ctx, p.Address, p.Amount); err != nil {
			return fmt.Errorf("approve for venue %s failed: %w", p.Address, err)
		}
		if err := v.Deposit(ctx, p.Amount); err != nil {
			return fmt.Errorf("deposit to venue %s failed: %w", p.Address, err)
		}
	}
	return nil
}

// applyPlacements books executed placements into the registry and returns the
// updated total. Records and the running total move in lock-step.
func applyPlacements(reg *registry, total sdkmath.Int, placements []types.Placement) sdkmath.Int {
	for _, p := range placements {
		rec, _ := reg.get(p.Address)
		rec.Allocation = rec.Allocation.Add(p.Amount)
		total = total.Add(p.Amount)
	}
	return total
}

// Allocate places fresh vault capital across venues. Callable only by the
// registered vault, blocked while paused, and atomic: a venue rejecting any
// deposit aborts the whole call with no placement retained.
func (e *Engine) Allocate(ctx context.Context, caller string, amount sdkmath.Int) (types.DistributionPlan, error) {
	if err := e.begin(); err != nil {
		return types.DistributionPlan{}, err
	}
	defer e.end()

	log, opID := e.opLogger("allocate", caller)

	if err := e.requireVault(caller); err != nil {
		return types.DistributionPlan{}, err
	}
	if e.paused {
		return types.DistributionPlan{}, ErrPaused
	}
	if amount.IsNil() || !amount.IsPositive() {
		return types.DistributionPlan{}, ErrInvalidAmount
	}
	if e.reg.len() == 0 {
		return types.DistributionPlan{}, ErrNoVenues
	}

	e.refreshYields(ctx, opID, log)

	plan, err := planDistribution(e.reg, e.totalAllocated, e.limits, amount)
	if err != nil {
		return types.DistributionPlan{}, err
	}

	if err := e.executePlacements(ctx, plan.Placements); err != nil {
		log.Error().Err(err).Str("amount", amount.String()).Msg("Allocation aborted, no placement retained")
		return types.DistributionPlan{}, err
	}

	e.totalAllocated = applyPlacements(e.reg, e.totalAllocated, plan.Placements)
	e.emitPlanEvents(opID, plan)

	if e.metrics != nil {
		e.metrics.AllocationsTotal.Inc()
		if plan.EscapeValveUsed {
			e.metrics.EscapeValveTotal.Inc()
		}
	}
	e.updateGauges()
	e.checkpointLocked()

	log.Info().
		Str("amount", amount.String()).
		Int("placements", len(plan.Placements)).
		Bool("escapeValve", plan.EscapeValveUsed).
		Str("totalAllocated", e.totalAllocated.String()).
		Msg("Capital allocated")
	return plan, nil
}

func (e *Engine) emitPlanEvents(opID string, plan types.DistributionPlan) {
	for _, p := range plan.Placements {
		e.emit(types.Event{
			OpID:     opID,
			Type:     types.EventCapitalAllocated,
			Venue:    p.Address,
			Amount:   p.Amount,
			YieldBps: p.YieldBps,
		})
		if p.EscapeValve {
			e.emit(types.Event{
				OpID:   opID,
				Type:   types.EventEscapeValve,
				Venue:  p.Address,
				Amount: p.Amount,
				Detail: "remainder forced past concentration cap",
			})
		}
	}
}

// PreviewDistribution computes the placements a hypothetical allocation of
// amount would make against current state. Pure read: no yield refresh, no
// deposits, no state change.
func (e *Engine) PreviewDistribution(amount sdkmath.Int) (types.DistributionPlan, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return types.DistributionPlan{}, ErrInvalidAmount
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.reg.len() == 0 {
		return types.DistributionPlan{}, ErrNoVenues
	}
	return planDistribution(e.reg, e.totalAllocated, e.limits, amount)
}
