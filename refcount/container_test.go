package refcount

import (
	"sync/atomic"
	"testing"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/embercef/bridge/capi"
)

type testObject struct {
	capi.Base
	Poke func(self *testObject) int32
}

type testPayload struct {
	drops *atomic.Int32
	value int
}

func (p *testPayload) Drop() {
	if p.drops != nil {
		p.drops.Add(1)
	}
}

func ownerCount(p Ptr[testObject]) int64 {
	c := (*Container[testObject, testPayload])(unsafe.Pointer(p.Raw()))
	return c.count.Load()
}

func newTestObject(drops *atomic.Int32) Ptr[testObject] {
	return Wrap(testObject{
		Poke: func(self *testObject) int32 {
			state := Borrow[testObject, testPayload](self)
			return int32(state.value)
		},
	}, testPayload{drops: drops, value: 42})
}

func TestWrap_InitialState(t *testing.T) {
	var drops atomic.Int32
	p := newTestObject(&drops)

	if p.IsNil() {
		t.Fatal("wrap returned nil handle")
	}
	if got := ownerCount(p); got != 1 {
		t.Fatalf("initial count = %d, want 1", got)
	}
	if !p.HasOneRef() || !p.HasAtLeastOneRef() {
		t.Fatal("introspection slots disagree with count 1")
	}
	if got := p.Base().Size; got != unsafe.Sizeof(testObject{}) {
		t.Fatalf("header size = %d, want %d", got, unsafe.Sizeof(testObject{}))
	}

	p.Release()
	if drops.Load() != 1 {
		t.Fatalf("payload dropped %d times, want 1", drops.Load())
	}
}

// The count must equal 1 + clones - releases at every point, and the
// container must be torn down exactly once, at the transition to zero.
func TestCloneRelease_CountInvariant(t *testing.T) {
	var drops atomic.Int32
	p := newTestObject(&drops)

	handles := []Ptr[testObject]{p}
	for i := 0; i < 5; i++ {
		handles = append(handles, p.Clone())
		if got, want := ownerCount(p), int64(2+i); got != want {
			t.Fatalf("after %d clones: count = %d, want %d", i+1, got, want)
		}
	}

	for i := range handles {
		last := i == len(handles)-1
		handles[i].Release()
		if drops.Load() != 0 && !last {
			t.Fatalf("payload dropped before the last release (i=%d)", i)
		}
	}
	if drops.Load() != 1 {
		t.Fatalf("payload dropped %d times, want exactly 1", drops.Load())
	}
}

// A borrowed view must never change the count or run destruction logic,
// no matter how many times the trampoline fires.
func TestBorrow_DoesNotOwn(t *testing.T) {
	var drops atomic.Int32
	p := newTestObject(&drops)
	defer p.Release()

	for i := 0; i < 100; i++ {
		if got := p.Raw().Poke(p.Raw()); got != 42 {
			t.Fatalf("poke returned %d, want 42", got)
		}
	}

	if got := ownerCount(p); got != 1 {
		t.Fatalf("count after 100 borrows = %d, want 1", got)
	}
	if drops.Load() != 0 {
		t.Fatal("borrow ran destruction logic")
	}
}

func TestRelease_SecondCallIsNoOp(t *testing.T) {
	var drops atomic.Int32
	p := newTestObject(&drops)

	p.Release()
	p.Release() // handle is nil now; must not double free

	if drops.Load() != 1 {
		t.Fatalf("payload dropped %d times, want 1", drops.Load())
	}
	if !p.IsNil() {
		t.Fatal("released handle should be nil")
	}
}

func TestZeroPtr_IsInert(t *testing.T) {
	var p Ptr[testObject]
	p2 := p.Clone()
	p.Release()
	if !p.IsNil() || !p2.IsNil() || p.Base() != nil {
		t.Fatal("zero handle should stay inert")
	}
	if p.HasOneRef() || p.HasAtLeastOneRef() {
		t.Fatal("zero handle reports owners")
	}
}

// Concurrent increments and decrements must not lose updates or tear the
// object down early. Run with -race.
func TestConcurrentRefcount(t *testing.T) {
	const (
		workers = 8
		rounds  = 1000
	)

	var drops atomic.Int32
	p := newTestObject(&drops)
	base := p.Base()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				base.AddRef(base)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got, want := ownerCount(p), int64(1+workers*rounds); got != want {
		t.Fatalf("count after increments = %d, want %d", got, want)
	}

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				base.Release(base)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := ownerCount(p); got != 1 {
		t.Fatalf("count after decrements = %d, want 1", got)
	}
	if drops.Load() != 0 {
		t.Fatal("object torn down while a handle was still live")
	}

	p.Release()
	if drops.Load() != 1 {
		t.Fatalf("payload dropped %d times, want 1", drops.Load())
	}
}

func TestAdoptRetain(t *testing.T) {
	var drops atomic.Int32
	p := newTestObject(&drops)
	raw := p.Raw()

	retained := Retain(raw)
	if got := ownerCount(p); got != 2 {
		t.Fatalf("count after retain = %d, want 2", got)
	}

	// Adopt takes over an existing unit without adding one.
	adopted := Adopt(raw)
	if got := ownerCount(p); got != 2 {
		t.Fatalf("count after adopt = %d, want 2", got)
	}

	adopted.Release()
	retained.Release()
	if drops.Load() != 1 {
		t.Fatalf("payload dropped %d times, want 1", drops.Load())
	}
	_ = p // p's unit was consumed via adopted
}

func TestWrap_OnDestroyHook(t *testing.T) {
	var hooked atomic.Int32
	p := Wrap(testObject{}, testPayload{}, WithOnDestroy(func() {
		hooked.Add(1)
	}))

	clone := p.Clone()
	p.Release()
	if hooked.Load() != 0 {
		t.Fatal("hook ran before last release")
	}
	clone.Release()
	if hooked.Load() != 1 {
		t.Fatalf("hook ran %d times, want 1", hooked.Load())
	}
}

func TestDestroy_PoisonsSlots(t *testing.T) {
	p := newTestObject(nil)
	raw := p.Raw()
	p.Release()

	if raw.Poke != nil || raw.AddRef != nil {
		t.Fatal("slots should be poisoned after teardown")
	}
}

type badShape struct {
	First int
	capi.Base
}

func TestWrap_RejectsBadLayout(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for vtable without capi.Base first")
		}
	}()
	Wrap(badShape{}, 0)
}
