package registry

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/errors"
)

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnObjectEvent(e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *testObserver) snapshot() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

func TestTable_PinResolveUnpin(t *testing.T) {
	table := NewTable()
	base := &capi.Base{}

	h, err := table.Pin("client", base)
	if err != nil {
		t.Fatal(err)
	}
	if h == 0 {
		t.Fatal("expected non-zero handle")
	}

	got, err := table.Resolve(h)
	if err != nil {
		t.Fatal(err)
	}
	if got != base {
		t.Fatal("resolved a different object")
	}

	if kind, ok := table.Kind(h); !ok || kind != "client" {
		t.Fatalf("kind = %q, %v", kind, ok)
	}

	if err := table.Unpin(h); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Resolve(h); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRegistry, Kind: errors.KindNotFound}) {
		t.Fatalf("expected not_found after unpin, got %v", err)
	}
	if table.Len() != 0 {
		t.Fatal("expected empty table after unpin")
	}
}

func TestTable_ResolveKind(t *testing.T) {
	table := NewTable()
	h, err := table.Pin("request", &capi.Base{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := table.ResolveKind(h, "request"); err != nil {
		t.Fatal(err)
	}
	_, err = table.ResolveKind(h, "client")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRegistry, Kind: errors.KindKindMismatch}) {
		t.Fatalf("expected kind_mismatch, got %v", err)
	}
}

func TestTable_ZeroAndStaleHandles(t *testing.T) {
	table := NewTable()

	if _, err := table.Resolve(0); err == nil {
		t.Fatal("handle 0 must never resolve")
	}
	if _, err := table.Resolve(99); err == nil {
		t.Fatal("out of range handle must not resolve")
	}
	if _, err := table.Pin("x", nil); err == nil {
		t.Fatal("nil object must not pin")
	}
}

func TestTable_HandleReuse(t *testing.T) {
	table := NewTable()

	h1, _ := table.Pin("a", &capi.Base{})
	if err := table.Unpin(h1); err != nil {
		t.Fatal(err)
	}
	h2, _ := table.Pin("b", &capi.Base{})
	if h2 != h1 {
		t.Fatalf("expected freed handle %d to be reused, got %d", h1, h2)
	}
	if kind, _ := table.Kind(h2); kind != "b" {
		t.Fatalf("reused handle resolves old kind %q", kind)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h, _ := table.Pin("client", &capi.Base{})
	if err := table.MarkDestroyed(h); err != nil {
		t.Fatal(err)
	}

	events := obs.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventPinned || events[1].Type != EventDestroyed {
		t.Fatalf("unexpected event sequence %v, %v", events[0].Type, events[1].Type)
	}
	if events[0].Kind != "client" || events[1].Handle != h {
		t.Fatal("event payload wrong")
	}

	table.Unsubscribe(obs)
	_, _ = table.Pin("client", &capi.Base{})
	if len(obs.snapshot()) != 2 {
		t.Fatal("unsubscribed observer still notified")
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable()
	h, _ := table.Pin("client", &capi.Base{})

	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Pin("client", &capi.Base{}); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRegistry, Kind: errors.KindRegistryClosed}) {
		t.Fatalf("expected registry_closed, got %v", err)
	}
	if _, err := table.Resolve(h); err == nil {
		t.Fatal("resolve should fail after close")
	}
}

func TestTable_ConcurrentPinUnpin(t *testing.T) {
	table := NewTable()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h, err := table.Pin("obj", &capi.Base{})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := table.Resolve(h); err != nil {
					t.Error(err)
					return
				}
				if err := table.Unpin(h); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if table.Len() != 0 {
		t.Fatalf("leak: %d pins left", table.Len())
	}
}

func TestTable_Snapshot(t *testing.T) {
	table := NewTable()

	h1, _ := table.Pin("client", &capi.Base{})
	h2, _ := table.Pin("request", &capi.Base{})
	table.Unpin(h1)

	snap := table.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}
	if snap[0].Handle != h2 || snap[0].Kind != "request" {
		t.Fatalf("snapshot[0] = %+v", snap[0])
	}
	if snap[0].PinnedAt.IsZero() {
		t.Fatal("snapshot missing pin time")
	}
}
