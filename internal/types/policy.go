/*

This file contains the admin-tunable parameter sets for the allocation engine:
the per-venue concentration limits and the rebalancing policy.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidBasisPoints   = errors.New("basis points out of range")
	ErrInvalidMinAllocation = errors.New("minimum allocation is invalid")
	ErrInvalidSlippageBound = errors.New("slippage bounds are invalid")
	ErrInvalidThreshold     = errors.New("rebalance threshold is invalid")
	ErrInvalidCooldown      = errors.New("rebalance cooldown is invalid")
)

// AllocationLimits bounds how concentrated capital may become.
type AllocationLimits struct {
	// MaxVenueAllocationBps caps a single venue's share of total
	// post-allocation capital (e.g. 5000 = 50%).
	MaxVenueAllocationBps uint64 `json:"max_venue_allocation_bps"`

	// MinAllocation is the dust floor: a partial placement or move below it
	// is skipped rather than executed.
	MinAllocation sdkmath.Int `json:"min_allocation"`
}

// Validate rejects limits the engine cannot operate under.
func (l AllocationLimits) Validate() error {
	if l.MaxVenueAllocationBps == 0 || l.MaxVenueAllocationBps > uint64(BpsDenominator) {
		return fmt.Errorf("%w: max venue allocation %d bps", ErrInvalidBasisPoints, l.MaxVenueAllocationBps)
	}
	if l.MinAllocation.IsNil() || l.MinAllocation.IsNegative() {
		return ErrInvalidMinAllocation
	}
	return nil
}

// RebalancePolicy holds the guardrails and trigger condition for partial
// rebalancing. The slippage bounds are admin-settable guardrails validated at
// set time; the core algorithm does not enforce them numerically.
type RebalancePolicy struct {
	MinSlippageBps uint64 `json:"min_slippage_bps"`
	MaxSlippageBps uint64 `json:"max_slippage_bps"`

	// ThresholdBps is the minimum yield gap between the best venue and a
	// funded venue required to mark the latter for correction.
	ThresholdBps uint64 `json:"threshold_bps"`

	// Cooldown is the minimum interval between effective rebalances.
	Cooldown time.Duration `json:"cooldown"`
}

// Validate rejects inconsistent policies before they are applied.
func (p RebalancePolicy) Validate() error {
	if p.MinSlippageBps > p.MaxSlippageBps {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidSlippageBound, p.MinSlippageBps, p.MaxSlippageBps)
	}
	if p.MaxSlippageBps > uint64(BpsDenominator) {
		return fmt.Errorf("%w: max slippage %d bps", ErrInvalidSlippageBound, p.MaxSlippageBps)
	}
	if p.ThresholdBps > MaxYieldBps {
		return fmt.Errorf("%w: %d bps", ErrInvalidThreshold, p.ThresholdBps)
	}
	if p.Cooldown < 0 {
		return ErrInvalidCooldown
	}
	return nil
}

// EngineParameters bundles everything configurable at engine construction.
type EngineParameters struct {
	RegistryCapacity int              `json:"registry_capacity"`
	Limits           AllocationLimits `json:"limits"`
	Policy           RebalancePolicy  `json:"policy"`
}

// Validate checks the full parameter set.
func (p EngineParameters) Validate() error {
	if p.RegistryCapacity <= 0 {
		return errors.New("registry capacity must be positive")
	}
	if err := p.Limits.Validate(); err != nil {
		return err
	}
	return p.Policy.Validate()
}
