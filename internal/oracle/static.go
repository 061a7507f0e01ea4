package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lumenyield/aggregator/internal/types"
)

// ErrUnknownVenue is returned when the oracle has no signal for a venue.
var ErrUnknownVenue = errors.New("oracle has no yield for venue")

// Static is an in-memory oracle used in simulation mode and in tests. Yields
// are set directly; individual venues can be forced to fail to exercise the
// engine's per-venue fault isolation.
type Static struct {
	mu     sync.RWMutex
	yields map[types.VenueAddress]uint64
	fails  map[types.VenueAddress]error
}

// NewStatic creates an empty static oracle.
func NewStatic() *Static {
	return &Static{
		yields: make(map[types.VenueAddress]uint64),
		fails:  make(map[types.VenueAddress]error),
	}
}

// Set stores the yield that subsequent reads for venue will report.
func (s *Static) Set(venue types.VenueAddress, yieldBps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yields[venue] = yieldBps
	delete(s.fails, venue)
}

// Fail makes every subsequent read for venue return err.
func (s *Static) Fail(venue types.VenueAddress, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[venue] = err
}

// CurrentYield implements YieldOracle.
func (s *Static) CurrentYield(_ context.Context, venue types.VenueAddress) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.fails[venue]; ok {
		return 0, err
	}
	y, ok := s.yields[venue]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVenue, venue)
	}
	return y, nil
}
