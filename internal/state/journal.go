// ./internal/state/journal.go
package state

import (
	"github.com/rs/zerolog"

	"github.com/lumenyield/aggregator/internal/logger"
	"github.com/lumenyield/aggregator/internal/types"
)

// Journal persists engine events and state checkpoints to Postgres. Failures
// are logged and swallowed: durability is best-effort and must never block or
// abort an engine operation that already succeeded against the venues.
type Journal struct {
	logger zerolog.Logger
}

func NewJournal() *Journal {
	return &Journal{logger: logger.GetForComponent("journal")}
}

func (j *Journal) Record(event types.Event) {
	if err := RecordEvent(event); err != nil {
		j.logger.Error().Err(err).Str("eventType", string(event.Type)).Msg("Failed to persist engine event")
	}
}

func (j *Journal) Checkpoint(snap types.EngineSnapshot) {
	if err := SaveSnapshot(snap); err != nil {
		j.logger.Error().Err(err).Msg("Failed to persist engine snapshot")
	}
}
