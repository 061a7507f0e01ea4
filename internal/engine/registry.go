/*

The venue registry is an arena-style container: a dense slice of records plus
an index map from address to slice position. Iteration is a linear walk over
the slice; removal swaps the last record into the hole and truncates, so the
slice never fragments.

*/

package engine

import (
	"fmt"
	"sort"

	"github.com/lumenyield/aggregator/internal/types"
)

type registry struct {
	capacity int
	records  []types.VenueRecord
	index    map[types.VenueAddress]int
}

func newRegistry(capacity int) *registry {
	return &registry{
		capacity: capacity,
		records:  make([]types.VenueRecord, 0, capacity),
		index:    make(map[types.VenueAddress]int, capacity),
	}
}

func (r *registry) len() int {
	return len(r.records)
}

// add registers a new record. Duplicate addresses and registrations past
// capacity are rejected.
func (r *registry) add(rec types.VenueRecord) error {
	if rec.Address == types.ZeroVenue {
		return ErrInvalidAddress
	}
	if _, exists := r.index[rec.Address]; exists {
		return fmt.Errorf("%w: %s", ErrVenueExists, rec.Address)
	}
	if len(r.records) >= r.capacity {
		return fmt.Errorf("%w: capacity %d", ErrRegistryFull, r.capacity)
	}
	r.index[rec.Address] = len(r.records)
	r.records = append(r.records, rec)
	return nil
}

// get returns a mutable pointer into the arena. The pointer is invalidated by
// the next add or remove.
func (r *registry) get(addr types.VenueAddress) (*types.VenueRecord, bool) {
	i, ok := r.index[addr]
	if !ok {
		return nil, false
	}
	return &r.records[i], true
}

// remove compacts the record out of the arena by swapping the tail record
// into its slot and truncating.
func (r *registry) remove(addr types.VenueAddress) error {
	i, ok := r.index[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVenueNotFound, addr)
	}
	last := len(r.records) - 1
	if i != last {
		r.records[i] = r.records[last]
		r.index[r.records[i].Address] = i
	}
	r.records = r.records[:last]
	delete(r.index, addr)
	return nil
}

// best returns the active venue with the highest reported yield. The scan
// uses strict greater-than, so the first record to reach a given maximum wins
// ties. Returns the zero address when no active record exists.
func (r *registry) best() (types.VenueAddress, uint64) {
	bestAddr := types.ZeroVenue
	var bestYield uint64
	for i := range r.records {
		rec := &r.records[i]
		if !rec.Active {
			continue
		}
		if bestAddr == types.ZeroVenue || rec.ReportedYieldBps > bestYield {
			bestAddr = rec.Address
			bestYield = rec.ReportedYieldBps
		}
	}
	return bestAddr, bestYield
}

// sortedByYieldDesc returns pointers to the active records ordered by yield
// descending. The sort is stable so equal yields keep registration order.
func (r *registry) sortedByYieldDesc() []*types.VenueRecord {
	out := make([]*types.VenueRecord, 0, len(r.records))
	for i := range r.records {
		if r.records[i].Active {
			out = append(out, &r.records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReportedYieldBps > out[j].ReportedYieldBps
	})
	return out
}

// snapshot copies every record out of the arena.
func (r *registry) snapshot() []types.VenueRecord {
	out := make([]types.VenueRecord, len(r.records))
	copy(out, r.records)
	return out
}

// clone deep-copies the registry so an operation can stage mutations and
// commit them only after every external call has succeeded.
func (r *registry) clone() *registry {
	c := newRegistry(r.capacity)
	c.records = append(c.records, r.records...)
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}
