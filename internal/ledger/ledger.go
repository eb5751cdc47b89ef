// Package ledger tracks tickets sold per ticket type. TryAdmit and Release are
// the only operations that move a sold count; each entry has its own lock so
// admissions for unrelated ticket types never contend.
package ledger

import (
	"sort"
	"sync"

	"ticket-engine/internal/status"
)

type Key struct {
	EventID      string
	TicketTypeID string
}

func (k Key) less(o Key) bool {
	if k.EventID != o.EventID {
		return k.EventID < o.EventID
	}
	return k.TicketTypeID < o.TicketTypeID
}

type entry struct {
	mu       sync.Mutex
	capacity int
	sold     int
	active   bool
	retired  bool
}

func (e *entry) remaining() int {
	if e.retired || e.sold >= e.capacity {
		return 0
	}
	return e.capacity - e.sold
}

// AdmissionResult reports the outcome of TryAdmit. Remaining is the number of
// tickets left after the call, whether or not it succeeded.
type AdmissionResult struct {
	Admitted  bool
	Reason    error
	Remaining int
}

// Spec describes the desired shape of one ticket type in Apply.
type Spec struct {
	TicketTypeID string
	Capacity     int
	Active       bool
	Retired      bool
	// Sold seeds the count when the entry does not exist yet (inventory restore).
	// It is ignored for existing entries, whose sold count is never reset.
	Sold int
}

type Position struct {
	Key       Key  `json:"key"`
	Capacity  int  `json:"capacity"`
	Sold      int  `json:"sold"`
	Remaining int  `json:"remaining"`
	Active    bool `json:"active"`
	Retired   bool `json:"retired"`
}

type Ledger struct {
	mu      sync.RWMutex // guards the entries map, not the counts
	entries map[Key]*entry
}

func New() *Ledger {
	return &Ledger{entries: make(map[Key]*entry)}
}

func (l *Ledger) get(key Key) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[key]
}

// TryAdmit atomically reserves quantity tickets if capacity allows.
func (l *Ledger) TryAdmit(key Key, quantity int) AdmissionResult {
	if quantity <= 0 {
		return AdmissionResult{Reason: status.ErrInvalidQuantity}
	}

	e := l.get(key)
	if e == nil {
		return AdmissionResult{Reason: status.ErrUnknownTicketType}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active && !e.retired {
		return AdmissionResult{Reason: status.ErrTicketTypeInactive, Remaining: e.remaining()}
	}
	if e.retired || quantity > e.capacity-e.sold {
		return AdmissionResult{Reason: status.ErrInsufficientInventory, Remaining: e.remaining()}
	}

	e.sold += quantity
	return AdmissionResult{Admitted: true, Remaining: e.remaining()}
}

// Release returns quantity tickets to the pool, flooring the sold count at zero.
// It reports how many tickets were actually released.
func (l *Ledger) Release(key Key, quantity int) int {
	if quantity <= 0 {
		return 0
	}

	e := l.get(key)
	if e == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity > e.sold {
		quantity = e.sold
	}
	e.sold -= quantity
	return quantity
}

// Apply reshapes every listed ticket type of an event in one atomic step.
// Sold counts of existing entries are preserved; if any new capacity would
// fall below what is already sold nothing is changed.
func (l *Ledger) Apply(eventID string, specs []Spec) error {
	keys := make([]Key, 0, len(specs))
	bySpec := make(map[Key]Spec, len(specs))
	for _, s := range specs {
		k := Key{EventID: eventID, TicketTypeID: s.TicketTypeID}
		keys = append(keys, k)
		bySpec[k] = s
	}

	var created []Key
	l.mu.Lock()
	for _, k := range keys {
		if _, ok := l.entries[k]; !ok {
			s := bySpec[k]
			l.entries[k] = &entry{capacity: s.Capacity, sold: s.Sold, active: s.Active, retired: s.Retired}
			created = append(created, k)
		}
	}
	l.mu.Unlock()

	locked := l.lockSorted(keys)
	for _, le := range locked {
		s := bySpec[le.key]
		if !s.Retired && s.Capacity < le.entry.sold {
			unlockAll(locked)
			l.forget(created)
			return &status.RejectionError{
				Reason:       status.ErrCapacityBelowSold,
				TicketTypeID: s.TicketTypeID,
				Remaining:    le.entry.sold,
			}
		}
	}
	defer unlockAll(locked)

	for _, le := range locked {
		s := bySpec[le.key]
		if !s.Retired {
			le.entry.capacity = s.Capacity
		}
		le.entry.active = s.Active
		le.entry.retired = s.Retired
	}
	return nil
}

func (l *Ledger) forget(keys []Key) {
	if len(keys) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		delete(l.entries, k)
	}
}

// Position returns the current state of one ticket type.
func (l *Ledger) Position(key Key) (Position, bool) {
	e := l.get(key)
	if e == nil {
		return Position{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return position(key, e), true
}

// Snapshot returns a point-in-time view of every ticket type of eventID, or
// of all events when eventID is empty. All involved entries are locked
// together so the view never mixes states from different moments.
func (l *Ledger) Snapshot(eventID string) []Position {
	l.mu.RLock()
	keys := make([]Key, 0, len(l.entries))
	for k := range l.entries {
		if eventID == "" || k.EventID == eventID {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()

	locked := l.lockSorted(keys)
	defer unlockAll(locked)

	positions := make([]Position, 0, len(locked))
	for _, le := range locked {
		positions = append(positions, position(le.key, le.entry))
	}
	return positions
}

type lockedEntry struct {
	key   Key
	entry *entry
}

// lockSorted acquires entry locks in key order; TryAdmit and Release hold
// a single lock at a time, so ordered acquisition cannot deadlock.
func (l *Ledger) lockSorted(keys []Key) []lockedEntry {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	l.mu.RLock()
	locked := make([]lockedEntry, 0, len(keys))
	for _, k := range keys {
		if e, ok := l.entries[k]; ok {
			locked = append(locked, lockedEntry{key: k, entry: e})
		}
	}
	l.mu.RUnlock()

	for _, le := range locked {
		le.entry.mu.Lock()
	}
	return locked
}

func unlockAll(locked []lockedEntry) {
	for i := len(locked) - 1; i >= 0; i-- {
		locked[i].entry.mu.Unlock()
	}
}

func position(k Key, e *entry) Position {
	return Position{
		Key:       k,
		Capacity:  e.capacity,
		Sold:      e.sold,
		Remaining: e.remaining(),
		Active:    e.active,
		Retired:   e.retired,
	}
}
