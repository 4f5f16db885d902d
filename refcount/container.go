package refcount

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/embercef/bridge/capi"
)

// Dropper is optionally implemented by payloads that need cleanup when the
// last handle releases the container.
type Dropper interface {
	Drop()
}

// Container co-locates a vtable struct S, the refcount, and the safe
// payload P in one allocation. S must have capi.Base as its first field;
// Wrap checks this once per type and panics at construction on violation.
//
// The field order is load-bearing: the container's address reinterpreted
// as *S (or *capi.Base) must be valid, because that narrower view is all
// the foreign side ever holds.
type Container[S, P any] struct {
	slots     S
	count     atomic.Int64
	payload   P
	onDestroy func()
}

// WrapOption configures a container at construction.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	onDestroy func()
}

// WithOnDestroy installs a hook that runs after the payload is dropped,
// when the count transitions to zero. Used by integer-handle boundaries to
// unpin the object.
func WithOnDestroy(fn func()) WrapOption {
	return func(c *wrapConfig) { c.onDestroy = fn }
}

// Wrap allocates a container around slots and payload, installs the four
// refcount slots into the vtable header, sets the count to 1, and returns
// the single owning handle for that unit.
//
// Slot fields other than the header are left exactly as the caller set
// them, so builders populate their trampoline slots before calling Wrap.
func Wrap[S, P any](slots S, payload P, opts ...WrapOption) Ptr[S] {
	assertLayout[S]()

	var cfg wrapConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Container[S, P]{
		slots:     slots,
		payload:   payload,
		onDestroy: cfg.onDestroy,
	}
	c.count.Store(1)

	base := c.base()
	base.Size = unsafe.Sizeof(c.slots)
	base.AddRef = addRef[S, P]
	base.Release = release[S, P]
	base.HasOneRef = hasOneRef[S, P]
	base.HasAtLeastOneRef = hasAtLeastOneRef[S, P]

	return Ptr[S]{raw: &c.slots}
}

// Borrow reinterprets a trampoline's self pointer as its container and
// returns the payload. The view is non-owning: it never touches the count
// and has no destructor. The foreign call that produced self already holds
// the refcount unit keeping the container alive; the payload pointer is
// valid for the duration of that call only.
func Borrow[S, P any](self *S) *P {
	c := (*Container[S, P])(unsafe.Pointer(self))
	return &c.payload
}

func (c *Container[S, P]) base() *capi.Base {
	return (*capi.Base)(unsafe.Pointer(&c.slots))
}

func fromBase[S, P any](self *capi.Base) *Container[S, P] {
	return (*Container[S, P])(unsafe.Pointer(self))
}

func addRef[S, P any](self *capi.Base) {
	fromBase[S, P](self).count.Add(1)
}

func release[S, P any](self *capi.Base) int32 {
	c := fromBase[S, P](self)
	if c.count.Add(-1) > 0 {
		return capi.Alive
	}
	c.destroy()
	return capi.Destroyed
}

func hasOneRef[S, P any](self *capi.Base) int32 {
	return capi.CBool(fromBase[S, P](self).count.Load() == 1)
}

func hasAtLeastOneRef[S, P any](self *capi.Base) int32 {
	return capi.CBool(fromBase[S, P](self).count.Load() >= 1)
}

func (c *Container[S, P]) destroy() {
	if d, ok := any(c.payload).(Dropper); ok {
		d.Drop()
	} else if d, ok := any(&c.payload).(Dropper); ok {
		d.Drop()
	}
	if c.onDestroy != nil {
		c.onDestroy()
	}

	// Poison the vtable so a protocol-violating call after teardown fails
	// loudly instead of corrupting memory. Deallocation itself is the
	// collector's job once the foreign side stops holding the pointer.
	var zero S
	c.slots = zero
}

var (
	layoutChecked sync.Map // reflect.Type -> struct{}
	baseType      = reflect.TypeOf(capi.Base{})
)

func assertLayout[S any]() {
	t := reflect.TypeOf((*S)(nil)).Elem()
	if _, ok := layoutChecked.Load(t); ok {
		return
	}
	if t.Kind() != reflect.Struct || t.NumField() == 0 || t.Field(0).Type != baseType {
		panic(fmt.Sprintf("refcount: %s must be a struct with capi.Base as its first field", t))
	}
	layoutChecked.Store(t, struct{}{})
}
