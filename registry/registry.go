package registry

import (
	"sync"
	"time"

	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/errors"
)

// Handle is an opaque reference to a pinned object.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType distinguishes lifecycle notifications.
type EventType uint8

const (
	EventPinned EventType = iota
	EventUnpinned
	EventDestroyed
)

func (t EventType) String() string {
	switch t {
	case EventPinned:
		return "pinned"
	case EventUnpinned:
		return "unpinned"
	case EventDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Event describes one lifecycle transition of a pinned object.
type Event struct {
	Time   time.Time
	Kind   string
	Handle Handle
	Type   EventType
}

// Observer receives lifecycle events.
type Observer interface {
	OnObjectEvent(Event)
}

type entry struct {
	base     *capi.Base
	kind     string
	pinnedAt time.Time
	valid    bool
}

// Table is the pin table. Safe for concurrent use.
type Table struct {
	entries   []entry
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty pin table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Pin stores the object header under a fresh handle, keeping the
// underlying container reachable for the collector. The pin itself
// represents one foreign-held refcount unit; callers add-ref before
// pinning when they do not own the unit they are exporting.
func (t *Table) Pin(kind string, base *capi.Base) (Handle, error) {
	if base == nil {
		return 0, errors.NullObject(errors.PhaseRegistry, kind)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errors.RegistryClosed()
	}

	e := entry{base: base, kind: kind, pinnedAt: time.Now(), valid: true}

	var handle Handle
	if n := len(t.freeList); n > 0 {
		handle = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[handle-1] = e
	} else {
		t.entries = append(t.entries, e)
		handle = Handle(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventPinned, Handle: handle, Kind: kind, Time: e.pinnedAt})
	return handle, nil
}

// Resolve returns the pinned object header.
func (t *Table) Resolve(handle Handle) (*capi.Base, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(handle)
	if !ok {
		return nil, errors.NotFound(uint32(handle))
	}
	return e.base, nil
}

// ResolveKind returns the pinned object header only if it was pinned
// under the expected kind.
func (t *Table) ResolveKind(handle Handle, kind string) (*capi.Base, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(handle)
	if !ok {
		return nil, errors.NotFound(uint32(handle))
	}
	if e.kind != kind {
		return nil, errors.KindMismatch(uint32(handle), kind, e.kind)
	}
	return e.base, nil
}

// Kind returns the kind string a handle was pinned under.
func (t *Table) Kind(handle Handle) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(handle)
	if !ok {
		return "", false
	}
	return e.kind, true
}

// Unpin drops the table's reference. The caller remains responsible for
// releasing the refcount unit the pin represented.
func (t *Table) Unpin(handle Handle) error {
	return t.remove(handle, EventUnpinned)
}

// MarkDestroyed drops the table's reference for an object the foreign
// side just released to zero, publishing a destroyed event instead of a
// plain unpin.
func (t *Table) MarkDestroyed(handle Handle) error {
	return t.remove(handle, EventDestroyed)
}

func (t *Table) remove(handle Handle, ev EventType) error {
	t.mu.Lock()
	e, ok := t.lookup(handle)
	if !ok {
		t.mu.Unlock()
		return errors.NotFound(uint32(handle))
	}
	kind := e.kind
	idx := handle - 1
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, handle)
	t.mu.Unlock()

	t.notify(Event{Type: ev, Handle: handle, Kind: kind, Time: time.Now()})
	return nil
}

// Len returns the number of live pins.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live pins. The callback runs under the table's read
// lock; it must not call back into the table.
func (t *Table) Each(fn func(Handle, string, *capi.Base) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(Handle(i+1), e.kind, e.base) {
				break
			}
		}
	}
}

// PinInfo is a point-in-time view of one live pin.
type PinInfo struct {
	Handle   Handle
	Kind     string
	PinnedAt time.Time
}

// Snapshot returns a copy of the live pins, ordered by handle.
func (t *Table) Snapshot() []PinInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]PinInfo, 0, len(t.entries))
	for i, e := range t.entries {
		if e.valid {
			out = append(out, PinInfo{Handle: Handle(i + 1), Kind: e.kind, PinnedAt: e.pinnedAt})
		}
	}
	return out
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close drops every pin and stops accepting operations. Refcount units
// represented by dropped pins are the foreign side's loss; Close is for
// teardown, not graceful release.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()
	return nil
}

func (t *Table) lookup(handle Handle) (entry, bool) {
	if handle == 0 || int(handle-1) >= len(t.entries) {
		return entry{}, false
	}
	e := t.entries[handle-1]
	if !e.valid {
		return entry{}, false
	}
	return e, true
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnObjectEvent(e)
	}
}
