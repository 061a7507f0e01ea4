// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/lumenyield/aggregator/internal/types"
)

// SaveSnapshot persists the engine's full durable state in one transaction:
// the single engine_state row and the complete venue set. Venues no longer in
// the snapshot are deleted.
func SaveSnapshot(snap types.EngineSnapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	stateStmt := `
		INSERT INTO engine_state (
			id, total_allocated, last_rebalance_time, paused,
			max_venue_allocation_bps, min_allocation,
			min_slippage_bps, max_slippage_bps,
			rebalance_threshold_bps, rebalance_cooldown_seconds, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			total_allocated = EXCLUDED.total_allocated,
			last_rebalance_time = EXCLUDED.last_rebalance_time,
			paused = EXCLUDED.paused,
			max_venue_allocation_bps = EXCLUDED.max_venue_allocation_bps,
			min_allocation = EXCLUDED.min_allocation,
			min_slippage_bps = EXCLUDED.min_slippage_bps,
			max_slippage_bps = EXCLUDED.max_slippage_bps,
			rebalance_threshold_bps = EXCLUDED.rebalance_threshold_bps,
			rebalance_cooldown_seconds = EXCLUDED.rebalance_cooldown_seconds,
			updated_at = EXCLUDED.updated_at;`

	_, err = tx.Exec(stateStmt,
		snap.TotalAllocated.String(), snap.LastRebalanceTime, snap.Paused,
		snap.Limits.MaxVenueAllocationBps, snap.Limits.MinAllocation.String(),
		snap.Policy.MinSlippageBps, snap.Policy.MaxSlippageBps,
		snap.Policy.ThresholdBps, int64(snap.Policy.Cooldown/time.Second), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert engine state: %w", err)
	}

	addresses := make([]string, 0, len(snap.Venues))
	for _, v := range snap.Venues {
		addresses = append(addresses, string(v.Address))
	}
	_, err = tx.Exec(`DELETE FROM venues WHERE NOT (address = ANY($1));`, pq.Array(addresses))
	if err != nil {
		return fmt.Errorf("failed to prune removed venues: %w", err)
	}

	venueStmt := `
		INSERT INTO venues (address, reported_yield_bps, allocation, last_updated, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			reported_yield_bps = EXCLUDED.reported_yield_bps,
			allocation = EXCLUDED.allocation,
			last_updated = EXCLUDED.last_updated,
			active = EXCLUDED.active;`
	for _, v := range snap.Venues {
		_, err = tx.Exec(venueStmt,
			string(v.Address), v.ReportedYieldBps, v.Allocation.String(), v.LastUpdated, v.Active)
		if err != nil {
			return fmt.Errorf("failed to upsert venue %s: %w", v.Address, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	log.Debug().
		Int("venues", len(snap.Venues)).
		Str("totalAllocated", snap.TotalAllocated.String()).
		Msg("Saved engine snapshot")
	return nil
}

// LoadSnapshot reads the persisted engine state. Returns (nil, nil) when no
// state has ever been saved.
func LoadSnapshot() (*types.EngineSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stateQuery := `
		SELECT total_allocated, last_rebalance_time, paused,
		       max_venue_allocation_bps, min_allocation,
		       min_slippage_bps, max_slippage_bps,
		       rebalance_threshold_bps, rebalance_cooldown_seconds
		FROM engine_state WHERE id = 1;`

	var (
		snap            types.EngineSnapshot
		totalStr        string
		minAllocStr     string
		cooldownSeconds int64
	)
	row := DB.QueryRow(stateQuery)
	err := row.Scan(
		&totalStr, &snap.LastRebalanceTime, &snap.Paused,
		&snap.Limits.MaxVenueAllocationBps, &minAllocStr,
		&snap.Policy.MinSlippageBps, &snap.Policy.MaxSlippageBps,
		&snap.Policy.ThresholdBps, &cooldownSeconds,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan engine state: %w", err)
	}

	var ok bool
	snap.TotalAllocated, ok = sdkmath.NewIntFromString(totalStr)
	if !ok {
		return nil, fmt.Errorf("malformed total_allocated %q", totalStr)
	}
	snap.Limits.MinAllocation, ok = sdkmath.NewIntFromString(minAllocStr)
	if !ok {
		return nil, fmt.Errorf("malformed min_allocation %q", minAllocStr)
	}
	snap.Policy.Cooldown = time.Duration(cooldownSeconds) * time.Second

	venueQuery := `
		SELECT address, reported_yield_bps, allocation, last_updated, active
		FROM venues ORDER BY address;`
	rows, err := DB.Query(venueQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query venues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      types.VenueRecord
			addr     string
			allocStr string
		)
		if err := rows.Scan(&addr, &rec.ReportedYieldBps, &allocStr, &rec.LastUpdated, &rec.Active); err != nil {
			return nil, fmt.Errorf("failed to scan venue row: %w", err)
		}
		rec.Address = types.VenueAddress(addr)
		rec.Allocation, ok = sdkmath.NewIntFromString(allocStr)
		if !ok {
			return nil, fmt.Errorf("malformed allocation %q for venue %s", allocStr, addr)
		}
		snap.Venues = append(snap.Venues, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate venue rows: %w", err)
	}

	log.Info().Int("venues", len(snap.Venues)).Msg("Loaded engine snapshot")
	return &snap, nil
}
