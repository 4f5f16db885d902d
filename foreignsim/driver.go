package foreignsim

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/embercef/bridge"
	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/errors"
	"github.com/embercef/bridge/refcount"
	"github.com/embercef/bridge/registry"
	"github.com/embercef/bridge/wrap"
)

// Driver is the native simulator: it owns the threads foreign calls
// arrive on and the pin table integer boundaries resolve against.
type Driver struct {
	log  *zap.Logger
	pins *registry.Table
	wg   sync.WaitGroup
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger overrides the library logger for this driver.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithRegistry shares an existing pin table instead of creating one.
func WithRegistry(t *registry.Table) Option {
	return func(d *Driver) { d.pins = t }
}

// NewDriver creates a native simulator.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = bridge.Logger()
	}
	if d.pins == nil {
		d.pins = registry.NewTable()
	}
	return d
}

// Pins exposes the driver's pin table.
func (d *Driver) Pins() *registry.Table { return d.pins }

// Wait blocks until all asynchronous foreign activity has drained.
func (d *Driver) Wait() { d.wg.Wait() }

type requestState struct {
	url      string
	status   atomic.Int32
	canceled atomic.Bool
}

// NewRequest fabricates a foreign-origin request. It is built with the
// same container machinery as locally wrapped objects; the refcount
// protocol is identical in both directions.
func (d *Driver) NewRequest(url string) refcount.Ptr[wrap.RequestObject] {
	state := &requestState{url: url}
	state.status.Store(int32(wrap.StatusIOPending))

	slots := wrap.RequestObject{
		GetURL: func(self *wrap.RequestObject) *capi.String {
			st := *refcount.Borrow[wrap.RequestObject, *requestState](self)
			return capi.NewString(st.url)
		},
		GetStatus: func(self *wrap.RequestObject) int32 {
			st := *refcount.Borrow[wrap.RequestObject, *requestState](self)
			return st.status.Load()
		},
		Cancel: func(self *wrap.RequestObject) {
			st := *refcount.Borrow[wrap.RequestObject, *requestState](self)
			st.canceled.Store(true)
			st.status.Store(int32(wrap.StatusCanceled))
		},
	}
	return refcount.Wrap(slots, state)
}

// Complete drives the canonical call sequence against a wrapped client on
// the calling goroutine: progress, data chunks, then completion. Nil
// slots are skipped, never called.
func (d *Driver) Complete(client refcount.Ptr[wrap.ClientObject], req refcount.Ptr[wrap.RequestObject], chunks ...[]byte) {
	raw := client.Raw()
	rawReq := req.Raw()
	if raw == nil {
		d.log.Warn("complete called with absent client")
		return
	}

	if st := requestStateOf(req); st != nil {
		st.status.Store(int32(wrap.StatusSuccess))
	}

	var total int64 = -1
	if len(chunks) > 0 {
		total = 0
		for _, c := range chunks {
			total += int64(len(c))
		}
	}

	var sent int64
	for _, chunk := range chunks {
		sent += int64(len(chunk))
		if raw.OnDownloadProgress != nil {
			raw.OnDownloadProgress(raw, rawReq, sent, total)
		}
		if raw.OnData != nil {
			raw.OnData(raw, rawReq, chunk)
		}
	}
	if raw.OnComplete != nil {
		raw.OnComplete(raw, rawReq)
	}
}

// CompleteAsync takes ownership of both handles and runs Complete from a
// goroutine the caller does not control.
func (d *Driver) CompleteAsync(client refcount.Ptr[wrap.ClientObject], req refcount.Ptr[wrap.RequestObject], chunks ...[]byte) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer client.Release()
		defer req.Release()
		d.Complete(client, req, chunks...)
	}()
}

// Finish fires a wrapped completion once.
func (d *Driver) Finish(comp refcount.Ptr[wrap.CompletionObject], path string, ok bool) {
	raw := comp.Raw()
	if raw == nil || raw.OnFinished == nil {
		return
	}
	raw.OnFinished(raw, capi.NewString(path), capi.CBool(ok))
}

// FinishAsync takes ownership of the handle and fires it from a goroutine
// the caller does not control.
func (d *Driver) FinishAsync(comp refcount.Ptr[wrap.CompletionObject], path string, ok bool) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer comp.Release()
		d.Finish(comp, path, ok)
	}()
}

// Credentials is the answer delivered through an auth continuation.
type Credentials struct {
	User     string
	Pass     string
	Canceled bool
}

type authState struct {
	ch chan Credentials
}

// Challenge asks a wrapped client for credentials, handing it a
// fabricated continuation. Reports false when the client lacks the
// capability or declines; otherwise the answer arrives on the returned
// channel whenever the client continues or cancels.
func (d *Driver) Challenge(client refcount.Ptr[wrap.ClientObject], isProxy bool, host string, port uint16, realm, scheme string) (<-chan Credentials, bool) {
	raw := client.Raw()
	if raw == nil || raw.GetCredentials == nil {
		return nil, false
	}

	ch := make(chan Credentials, 1)
	auth := refcount.Wrap(wrap.AuthObject{
		Continue: func(self *wrap.AuthObject, username, password *capi.String) {
			st := refcount.Borrow[wrap.AuthObject, authState](self)
			st.ch <- Credentials{User: username.Get(), Pass: password.Get()}
		},
		Cancel: func(self *wrap.AuthObject) {
			st := refcount.Borrow[wrap.AuthObject, authState](self)
			st.ch <- Credentials{Canceled: true}
		},
	}, authState{ch: ch})

	handled := capi.Bool(raw.GetCredentials(raw, capi.CBool(isProxy),
		capi.NewString(host), int32(port),
		capi.NewString(realm), capi.NewString(scheme), auth.Raw()))

	// The driver's unit is done either way; the client's retain keeps the
	// continuation alive until it answers.
	auth.Release()

	if !handled {
		return nil, false
	}
	return ch, true
}

// Export pins an object for an integer boundary, taking a dedicated
// refcount unit the pin represents.
func (d *Driver) Export(kind string, base *capi.Base) (registry.Handle, error) {
	if base == nil {
		return 0, errors.NullObject(errors.PhaseSim, kind)
	}
	if base.AddRef != nil {
		base.AddRef(base)
	}
	h, err := d.pins.Pin(kind, base)
	if err != nil {
		if base.Release != nil {
			base.Release(base)
		}
		return 0, err
	}
	return h, nil
}

// Withdraw unpins an exported object and releases the pin's unit.
func (d *Driver) Withdraw(h registry.Handle) error {
	base, err := d.pins.Resolve(h)
	if err != nil {
		return err
	}
	if err := d.pins.Unpin(h); err != nil {
		return err
	}
	if base.Release != nil {
		base.Release(base)
	}
	return nil
}

// RefStorm hammers one object with concurrent add-ref and release
// traffic, leaving the count where it started.
func (d *Driver) RefStorm(base *capi.Base, workers, rounds int) error {
	if base == nil || base.AddRef == nil || base.Release == nil {
		return errors.NullObject(errors.PhaseSim, "storm target")
	}

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
		return err
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				base.Release(base)
			}
			return nil
		})
	}
	return g.Wait()
}

func requestStateOf(req refcount.Ptr[wrap.RequestObject]) *requestState {
	raw := req.Raw()
	if raw == nil {
		return nil
	}
	return *refcount.Borrow[wrap.RequestObject, *requestState](raw)
}
