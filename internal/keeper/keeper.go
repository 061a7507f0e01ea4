/*

Package keeper drives periodic rebalance runs on a cron schedule. The engine's
cooldown makes frequent triggering harmless, so the keeper fires often and
lets the engine decide whether a pass does anything.

*/

package keeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lumenyield/aggregator/internal/engine"
	"github.com/lumenyield/aggregator/internal/logger"
	"github.com/lumenyield/aggregator/internal/types"
)

// CallerName is the caller identity recorded on keeper-triggered operations.
const CallerName = "keeper"

// Rebalancer is the single engine capability the keeper needs.
type Rebalancer interface {
	Rebalance(ctx context.Context, caller string) (types.RebalanceResult, error)
}

// Keeper schedules rebalance runs.
type Keeper struct {
	logger zerolog.Logger
	cron   *cron.Cron
	engine Rebalancer
}

// New creates a keeper around the given rebalancer.
func New(engine Rebalancer) (*Keeper, error) {
	if engine == nil {
		return nil, fmt.Errorf("rebalancer cannot be nil")
	}
	return &Keeper{
		logger: logger.GetForComponent("keeper"),
		cron:   cron.New(),
		engine: engine,
	}, nil
}

// Register adds a rebalance job on the given cron schedule, e.g. "@every 10m"
// or "*/15 * * * *".
func (k *Keeper) Register(schedule string) error {
	_, err := k.cron.AddFunc(schedule, k.runOnce)
	if err != nil {
		return fmt.Errorf("invalid keeper schedule %q: %w", schedule, err)
	}
	k.logger.Info().Str("schedule", schedule).Msg("Rebalance job registered")
	return nil
}

// Start begins executing registered jobs in the cron's own goroutine.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info().Msg("Keeper started")
}

// Stop halts scheduling and waits for a running job to finish.
func (k *Keeper) Stop() {
	ctx := k.cron.Stop()
	<-ctx.Done()
	k.logger.Info().Msg("Keeper stopped")
}

func (k *Keeper) runOnce() {
	result, err := k.engine.Rebalance(context.Background(), CallerName)
	if err != nil {
		if errors.Is(err, engine.ErrReentrantCall) {
			// Another operation holds the engine; the next tick retries.
			k.logger.Debug().Msg("Engine busy, skipping this tick")
			return
		}
		k.logger.Error().Err(err).Msg("Scheduled rebalance failed")
		return
	}
	if result.Skipped {
		k.logger.Debug().Str("reason", result.Reason).Msg("Scheduled rebalance skipped")
		return
	}
	k.logger.Info().
		Str("bestVenue", string(result.BestVenue)).
		Int("moves", len(result.Moves)).
		Msg("Scheduled rebalance completed")
}
