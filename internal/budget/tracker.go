// Package budget enforces the per-cycle spend ceiling through an atomic
// reserve/commit/release protocol. A reservation holds estimated cost against
// the ceiling before a call whose true cost is known only afterwards.
package budget

import "sync"

// float comparisons tolerate accumulated rounding from price arithmetic
const epsilon = 1e-9

// Reservation is a provisional hold returned by Reserve. Each reservation is
// terminated by exactly one Commit or Release.
type Reservation struct {
	id     uint64
	amount float64
}

// Amount returns the held estimate.
func (r *Reservation) Amount() float64 { return r.amount }

// Tracker maintains committed and outstanding spend for the active cycle.
// Reserve is the only synchronization point needed by concurrent generation
// workers: two workers racing for the last headroom see one success and one
// rejection, never an over-commit.
type Tracker struct {
	mu          sync.Mutex
	ceiling     float64
	committed   float64
	outstanding float64
	nextID      uint64
	open        map[uint64]float64
}

// NewTracker builds a tracker with the given ceiling.
func NewTracker(ceiling float64) *Tracker {
	return &Tracker{ceiling: ceiling, open: map[uint64]float64{}}
}

// Reset clears all state for a new cycle. Safe only because at most one run
// is active system-wide.
func (t *Tracker) Reset(ceiling float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ceiling = ceiling
	t.committed = 0
	t.outstanding = 0
	t.open = map[uint64]float64{}
}

// Reserve atomically checks committed + outstanding + estimate against the
// ceiling. On success the estimate is held and a token returned; on failure
// it returns (nil, false) with no side effects.
func (t *Tracker) Reserve(estimate float64) (*Reservation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed+t.outstanding+estimate > t.ceiling+epsilon {
		return nil, false
	}
	t.nextID++
	r := &Reservation{id: t.nextID, amount: estimate}
	t.open[r.id] = estimate
	t.outstanding += estimate
	return r, true
}

// Commit releases the reservation and adds the actual cost to the committed
// total. Actual cost may differ from the estimate; providers report true
// usage only after the call completes.
func (t *Tracker) Commit(r *Reservation, actual float64) {
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	held, ok := t.open[r.id]
	if !ok {
		return
	}
	delete(t.open, r.id)
	t.outstanding -= held
	t.committed += actual
}

// Release drops a reservation without committing, refunding the headroom.
// Used when a call fails before incurring real cost.
func (t *Tracker) Release(r *Reservation) {
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	held, ok := t.open[r.id]
	if !ok {
		return
	}
	delete(t.open, r.id)
	t.outstanding -= held
}

// Committed returns the total of all committed costs this cycle.
func (t *Tracker) Committed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// Outstanding returns the sum of open reservations.
func (t *Tracker) Outstanding() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding
}

// Ceiling returns the configured spend ceiling.
func (t *Tracker) Ceiling() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ceiling
}
