/*

Partial rebalancing.

Rebalance compares every funded venue against the current best and, when the
yield gap exceeds the policy threshold, moves exactly half of the laggard's
capital to the best venue through the same capped deposit path the
distributor uses. Half, not all: a bounded correction smooths churn when
yields are noisy, and the cooldown stops oscillating signals from causing
repeated thrashing. A call inside the cooldown window is a silent no-op, not
an error — the operation is meant to be cheap to call often.

*/

package engine

import (
	"context"
	"fmt"

	"github.com/lumenyield/aggregator/internal/types"
)

// Rebalance runs one rebalancing pass. Callable by anyone; the caller is
// recorded for tracing only. lastRebalanceTime advances only when at least
// one move was executed, so an ineffective call can be retried sooner.
func (e *Engine) Rebalance(ctx context.Context, caller string) (types.RebalanceResult, error) {
	if err := e.begin(); err != nil {
		return types.RebalanceResult{}, err
	}
	defer e.end()

	log, opID := e.opLogger("rebalance", caller)

	now := e.now()
	if now.Before(e.lastRebalance.Add(e.policy.Cooldown)) {
		log.Debug().
			Time("lastRebalance", e.lastRebalance).
			Dur("cooldown", e.policy.Cooldown).
			Msg("Rebalance inside cooldown window, nothing to do")
		return e.skipRebalance("cooldown"), nil
	}
	if e.reg.len() == 0 {
		log.Debug().Msg("Rebalance with empty registry, nothing to do")
		return e.skipRebalance("no venues registered"), nil
	}

	e.refreshYields(ctx, opID, log)

	best, bestYield := e.reg.best()
	if best == types.ZeroVenue {
		return e.skipRebalance("no active venues"), nil
	}

	// Mark every funded venue trailing the best by more than the threshold.
	var marked []types.VenueAddress
	for i := range e.reg.records {
		rec := &e.reg.records[i]
		if !rec.Active || rec.Address == best || !rec.Allocation.IsPositive() {
			continue
		}
		if bestYield > rec.ReportedYieldBps+e.policy.ThresholdBps {
			marked = append(marked, rec.Address)
		}
	}
	if len(marked) == 0 {
		log.Debug().
			Str("bestVenue", string(best)).
			Uint64("bestYieldBps", bestYield).
			Msg("No venue trails the best beyond the threshold")
		return e.skipRebalance("no laggards"), nil
	}

	// Stage all moves against a working copy; commit only if every external
	// call succeeds.
	staged := e.reg.clone()
	stagedTotal := e.totalAllocated
	var moves []types.RebalanceMove

	for _, addr := range marked {
		rec, _ := staged.get(addr)
		moveAmount := rec.Allocation.QuoRaw(2)
		if !moveAmount.IsPositive() || moveAmount.LT(e.limits.MinAllocation) {
			log.Debug().
				Str("venue", string(addr)).
				Str("moveAmount", moveAmount.String()).
				Msg("Correction below dust floor, skipping venue")
			continue
		}

		laggard, err := e.venues.Lookup(addr)
		if err != nil {
			return types.RebalanceResult{}, fmt.Errorf("venue %s unavailable: %w", addr, err)
		}
		if err := laggard.Withdraw(ctx, moveAmount); err != nil {
			log.Error().Err(err).Str("venue", string(addr)).Msg("Rebalance aborted, no state change retained")
			return types.RebalanceResult{}, fmt.Errorf("withdraw from venue %s failed: %w", addr, err)
		}
		rec.Allocation = rec.Allocation.Sub(moveAmount)
		stagedTotal = stagedTotal.Sub(moveAmount)

		// Re-enter through the capped deposit path so destination caps still
		// hold on the incoming side.
		plan, err := planDistribution(staged, stagedTotal, e.limits, moveAmount)
		if err != nil {
			return types.RebalanceResult{}, err
		}
		if err := e.executePlacements(ctx, plan.Placements); err != nil {
			log.Error().Err(err).Str("venue", string(addr)).Msg("Rebalance aborted, no state change retained")
			return types.RebalanceResult{}, err
		}
		stagedTotal = applyPlacements(staged, stagedTotal, plan.Placements)

		moves = append(moves, types.RebalanceMove{
			From:       addr,
			Amount:     moveAmount,
			Placements: plan.Placements,
		})
	}

	if len(moves) == 0 {
		// Everything marked was dust; leave lastRebalanceTime untouched so
		// the next call can retry sooner.
		log.Debug().Msg("All marked corrections below dust floor")
		return e.skipRebalance("all corrections below dust floor"), nil
	}

	e.reg = staged
	e.totalAllocated = stagedTotal
	e.lastRebalance = now

	for _, m := range moves {
		e.emit(types.Event{
			OpID:   opID,
			Type:   types.EventRebalanceMove,
			Venue:  m.From,
			Amount: m.Amount,
			Detail: fmt.Sprintf("moved to %d venue(s), best %s at %d bps", len(m.Placements), best, bestYield),
		})
		for _, p := range m.Placements {
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
	e.emit(types.Event{
		OpID:     opID,
		Type:     types.EventRebalanceCompleted,
		Venue:    best,
		YieldBps: bestYield,
		Detail:   fmt.Sprintf("%d move(s)", len(moves)),
	})

	if e.metrics != nil {
		e.metrics.RebalanceRunsTotal.Inc()
		e.metrics.RebalanceMovesTotal.Add(float64(len(moves)))
	}
	e.updateGauges()
	e.checkpointLocked()

	log.Info().
		Str("bestVenue", string(best)).
		Uint64("bestYieldBps", bestYield).
		Int("moves", len(moves)).
		Str("totalAllocated", e.totalAllocated.String()).
		Msg("Rebalance completed")

	return types.RebalanceResult{
		BestVenue:    best,
		BestYieldBps: bestYield,
		Moves:        moves,
	}, nil
}

func (e *Engine) skipRebalance(reason string) types.RebalanceResult {
	if e.metrics != nil {
		e.metrics.RebalanceSkipsTotal.Inc()
	}
	return types.RebalanceResult{Skipped: true, Reason: reason}
}
