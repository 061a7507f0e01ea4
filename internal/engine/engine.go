/*

Package engine implements the capital-allocation engine: the venue registry,
the capped greedy distributor, the partial rebalancer, and the lifecycle and
safety controls around them.

Every public operation is a single atomic unit of work. A CAS-based guard
rejects nested or overlapping mutating calls with ErrReentrantCall instead of
interleaving them, and registry state is only committed after every external
venue call in the operation has succeeded, so a failure is a clean abort with
zero engine-state effect.

*/

package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lumenyield/aggregator/internal/logger"
	"github.com/lumenyield/aggregator/internal/metrics"
	"github.com/lumenyield/aggregator/internal/oracle"
	"github.com/lumenyield/aggregator/internal/types"
	"github.com/lumenyield/aggregator/internal/venue"
)

const secondsPerYear int64 = 365 * 24 * 3600

// Journal receives the engine's event notifications and durable state
// checkpoints. Implementations must not fail the caller: persistence problems
// are theirs to log.
type Journal interface {
	Record(ev types.Event)
	Checkpoint(snap types.EngineSnapshot)
}

// Engine is the pool allocation and rebalancing engine.
type Engine struct {
	logger zerolog.Logger

	// busy rejects nested and overlapping mutating calls; mu orders readers
	// against the committing mutator. busy is always taken before mu so a
	// reentrant call fails fast instead of deadlocking.
	busy atomic.Bool
	mu   sync.RWMutex

	reg            *registry
	totalAllocated sdkmath.Int
	limits         types.AllocationLimits
	policy         types.RebalancePolicy
	lastRebalance  time.Time
	paused         bool

	oracle       oracle.YieldOracle
	venues       venue.Directory
	asset        venue.AssetToken
	journal      Journal
	metrics      *metrics.Metrics
	acl          *AccessList
	vaultAccount string

	now func() time.Time
}

// Config holds the dependencies for creating a new Engine instance.
type Config struct {
	Oracle        oracle.YieldOracle
	Venues        venue.Directory
	Asset         venue.AssetToken
	Journal       Journal          // optional
	Metrics       *metrics.Metrics // optional
	VaultAccount  string
	AdminAccounts []string
	Params        types.EngineParameters
	Restore       *types.EngineSnapshot // optional, previously checkpointed state
	Clock         func() time.Time      // optional, defaults to time.Now
}

// New creates an engine with dependency injection.
func New(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	acl, err := NewAccessList(cfg.VaultAccount, cfg.AdminAccounts)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		logger:         logger.GetForComponent("allocation_engine"),
		reg:            newRegistry(cfg.Params.RegistryCapacity),
		totalAllocated: sdkmath.ZeroInt(),
		limits:         cfg.Params.Limits,
		policy:         cfg.Params.Policy,
		oracle:         cfg.Oracle,
		venues:         cfg.Venues,
		asset:          cfg.Asset,
		journal:        cfg.Journal,
		metrics:        cfg.Metrics,
		acl:            acl,
		vaultAccount:   cfg.VaultAccount,
		now:            clock,
	}

	if cfg.Restore != nil {
		if err := e.restore(*cfg.Restore); err != nil {
			return nil, fmt.Errorf("failed to restore engine snapshot: %w", err)
		}
		e.logger.Info().
			Int("venues", e.reg.len()).
			Str("totalAllocated", e.totalAllocated.String()).
			Msg("Engine state restored from snapshot")
	}

	e.updateGauges()
	e.logger.Info().
		Int("registryCapacity", cfg.Params.RegistryCapacity).
		Uint64("maxVenueAllocationBps", e.limits.MaxVenueAllocationBps).
		Msg("Allocation engine created")
	return e, nil
}

func validateEngineConfig(cfg Config) error {
	if cfg.Oracle == nil {
		return fmt.Errorf("yield oracle cannot be nil")
	}
	if cfg.Venues == nil {
		return fmt.Errorf("venue directory cannot be nil")
	}
	if cfg.Asset == nil {
		return fmt.Errorf("asset token client cannot be nil")
	}
	if cfg.VaultAccount == "" {
		return fmt.Errorf("vault account cannot be empty")
	}
	return cfg.Params.Validate()
}

func (e *Engine) restore(snap types.EngineSnapshot) error {
	for _, rec := range snap.Venues {
		if rec.Allocation.IsNil() {
			rec.Allocation = sdkmath.ZeroInt()
		}
		if err := e.reg.add(rec); err != nil {
			return err
		}
	}
	if !snap.TotalAllocated.IsNil() {
		e.totalAllocated = snap.TotalAllocated
	}
	e.lastRebalance = snap.LastRebalanceTime
	e.paused = snap.Paused
	if err := snap.Limits.Validate(); err == nil {
		e.limits = snap.Limits
	}
	if err := snap.Policy.Validate(); err == nil {
		e.policy = snap.Policy
	}
	return nil
}

// begin acquires the engine for a mutating operation. The busy flag is taken
// first so a nested call from inside a venue or oracle callback gets
// ErrReentrantCall instead of deadlocking on the mutex.
func (e *Engine) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	e.mu.Lock()
	return nil
}

// end releases the engine. Deferred on every mutating path, including failures.
func (e *Engine) end() {
	e.mu.Unlock()
	e.busy.Store(false)
}

func (e *Engine) opLogger(op, caller string) (zerolog.Logger, string) {
	opID := uuid.New().String()
	l := e.logger.With().
		Str("op", op).
		Str("op_id", opID).
		Str("caller", caller).
		Logger()
	return l, opID
}

// emit records one event through the journal.
func (e *Engine) emit(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	if e.journal != nil {
		e.journal.Record(ev)
	}
}

// checkpointLocked persists the full durable state. Caller holds mu.
func (e *Engine) checkpointLocked() {
	if e.journal == nil {
		return
	}
	e.journal.Checkpoint(types.EngineSnapshot{
		Venues:            e.reg.snapshot(),
		TotalAllocated:    e.totalAllocated,
		LastRebalanceTime: e.lastRebalance,
		Paused:            e.paused,
		Limits:            e.limits,
		Policy:            e.policy,
	})
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	total, _ := new(big.Float).SetInt(e.totalAllocated.BigInt()).Float64()
	e.metrics.TotalAllocated.Set(total)
	e.metrics.ActiveVenues.Set(float64(e.reg.len()))
}

// refreshYields asks the oracle for every active venue's current yield. This
// is the engine's only fault-tolerant external call: a failed or out-of-bound
// read skips that venue and never aborts the calling operation.
func (e *Engine) refreshYields(ctx context.Context, opID string, log zerolog.Logger) {
	for i := range e.reg.records {
		rec := &e.reg.records[i]
		if !rec.Active {
			continue
		}
		yieldBps, err := e.oracle.CurrentYield(ctx, rec.Address)
		if err != nil {
			log.Warn().Err(err).
				Str("venue", string(rec.Address)).
				Msg("Oracle read failed, keeping last reported yield")
			if e.metrics != nil {
				e.metrics.OracleFailuresTotal.Inc()
			}
			continue
		}
		if yieldBps > types.MaxYieldBps {
			log.Warn().
				Str("venue", string(rec.Address)).
				Uint64("yieldBps", yieldBps).
				Msg("Oracle reported yield above bound, keeping last reported yield")
			if e.metrics != nil {
				e.metrics.OracleFailuresTotal.Inc()
			}
			continue
		}
		if yieldBps != rec.ReportedYieldBps {
			previous := rec.ReportedYieldBps
			rec.ReportedYieldBps = yieldBps
			rec.LastUpdated = e.now()
			e.emit(types.Event{
				OpID:     opID,
				Type:     types.EventYieldUpdated,
				Venue:    rec.Address,
				YieldBps: yieldBps,
				Detail:   fmt.Sprintf("previous %d bps", previous),
			})
			log.Debug().
				Str("venue", string(rec.Address)).
				Uint64("previousBps", previous).
				Uint64("yieldBps", yieldBps).
				Msg("Venue yield updated")
		}
	}
}

// --- Read surface ---

// BestVenue returns the active venue with the highest reported yield, or the
// zero address when none exists. Pure read.
func (e *Engine) BestVenue() (types.VenueAddress, uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.best()
}

// Venue returns the record for a registered venue.
func (e *Engine) Venue(addr types.VenueAddress) (types.VenueRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.reg.get(addr)
	if !ok {
		return types.VenueRecord{}, fmt.Errorf("%w: %s", ErrVenueNotFound, addr)
	}
	return *rec, nil
}

// Snapshot returns a copy of the full engine state.
func (e *Engine) Snapshot() types.RegistryView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return types.RegistryView{
		Venues:            e.reg.snapshot(),
		TotalAllocated:    e.totalAllocated,
		Capacity:          e.reg.capacity,
		Paused:            e.paused,
		LastRebalanceTime: e.lastRebalance,
		Limits:            e.limits,
		Policy:            e.policy,
	}
}

// TotalAllocated returns the aggregate capital placed across venues.
func (e *Engine) TotalAllocated() sdkmath.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalAllocated
}

// AllocationBps returns a venue's share of total allocated capital in basis
// points, truncating.
func (e *Engine) AllocationBps(addr types.VenueAddress) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.reg.get(addr)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrVenueNotFound, addr)
	}
	return rec.AllocationBpsOf(e.totalAllocated), nil
}

// ProjectedYield estimates the earnings of the current allocations over the
// given duration, assuming reported yields hold. Integer math, truncating:
// the estimate never overstates.
func (e *Engine) ProjectedYield(d time.Duration) (sdkmath.Int, error) {
	if d <= 0 {
		return sdkmath.ZeroInt(), ErrInvalidDuration
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	weighted := sdkmath.ZeroInt()
	for i := range e.reg.records {
		rec := &e.reg.records[i]
		if !rec.Active || !rec.Allocation.IsPositive() {
			continue
		}
		weighted = weighted.Add(rec.Allocation.MulRaw(int64(rec.ReportedYieldBps)))
	}
	seconds := int64(d / time.Second)
	return weighted.MulRaw(seconds).QuoRaw(types.BpsDenominator * secondsPerYear), nil
}
