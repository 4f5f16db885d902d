package wrap

import (
	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/confined"
	"github.com/embercef/bridge/guard"
	"github.com/embercef/bridge/refcount"
)

// Client is the base capability for objects handed to the foreign side to
// observe an operation. Its methods are invoked on threads the safe side
// does not control.
type Client interface {
	// OnComplete is called once the operation reaches a terminal status.
	// The request is valid for the duration of the call; clone it to keep.
	OnComplete(req Request)
}

// ProgressHandler is optionally implemented by clients that want transfer
// progress. total is -1 when the size is not known.
type ProgressHandler interface {
	OnUploadProgress(req Request, current, total int64)
	OnDownloadProgress(req Request, current, total int64)
}

// DataHandler is optionally implemented by clients that want response
// bytes as they arrive. data is only valid during the call; copy to keep.
type DataHandler interface {
	OnData(req Request, data []byte)
}

// CredentialsProvider is optionally implemented by clients that can
// answer authentication challenges. Return true and answer cb later to
// continue, or false to fail the operation; returning true makes the
// provider responsible for consuming cb.
type CredentialsProvider interface {
	GetCredentials(isProxy bool, host string, port uint16, realm, scheme string, cb *AuthContinuation) bool
}

// ClientObject is the foreign shape of a wrapped client.
type ClientObject struct {
	capi.Base
	OnComplete         func(self *ClientObject, request *RequestObject)
	OnUploadProgress   func(self *ClientObject, request *RequestObject, current, total int64)
	OnDownloadProgress func(self *ClientObject, request *RequestObject, current, total int64)
	OnData             func(self *ClientObject, request *RequestObject, data []byte)
	GetCredentials     func(self *ClientObject, isProxy int32, host *capi.String, port int32, realm, scheme *capi.String, callback *AuthObject) int32
}

type clientState struct {
	get func() Client
}

// WrapClient builds a vtable for a client that is safe to call from any
// thread, wiring a trampoline into each slot whose capability the client
// implements and leaving the rest nil.
func WrapClient(c Client) refcount.Ptr[ClientObject] {
	return wrapClient(c, clientState{get: func() Client { return c }})
}

// WrapClientConfined builds a vtable for a client whose state is not safe
// to share. The payload crosses the boundary anyway; actual access is
// confined to the single thread the enclosing API documents, which the
// confinement wrapper asserts when its runtime check is enabled.
func WrapClientConfined(c Client) refcount.Ptr[ClientObject] {
	conf := confined.New(c)
	return wrapClient(c, clientState{get: func() Client { return *conf.Get() }})
}

func wrapClient(c Client, state clientState) refcount.Ptr[ClientObject] {
	slots := ClientObject{
		OnComplete: clientOnComplete,
	}
	if _, ok := c.(ProgressHandler); ok {
		slots.OnUploadProgress = clientOnUploadProgress
		slots.OnDownloadProgress = clientOnDownloadProgress
	}
	if _, ok := c.(DataHandler); ok {
		slots.OnData = clientOnData
	}
	if _, ok := c.(CredentialsProvider); ok {
		slots.GetCredentials = clientGetCredentials
	}
	return refcount.Wrap(slots, state)
}

func clientOnComplete(self *ClientObject, request *RequestObject) {
	guard.Boundary(KindClient, "on-complete", func() {
		state := refcount.Borrow[ClientObject, clientState](self)
		req := NewRequest(refcount.Retain(request))
		defer req.Release()
		state.get().OnComplete(req)
	})
}

func clientOnUploadProgress(self *ClientObject, request *RequestObject, current, total int64) {
	guard.Boundary(KindClient, "on-upload-progress", func() {
		state := refcount.Borrow[ClientObject, clientState](self)
		h, ok := state.get().(ProgressHandler)
		if !ok {
			return
		}
		req := NewRequest(refcount.Retain(request))
		defer req.Release()
		h.OnUploadProgress(req, current, total)
	})
}

func clientOnDownloadProgress(self *ClientObject, request *RequestObject, current, total int64) {
	guard.Boundary(KindClient, "on-download-progress", func() {
		state := refcount.Borrow[ClientObject, clientState](self)
		h, ok := state.get().(ProgressHandler)
		if !ok {
			return
		}
		req := NewRequest(refcount.Retain(request))
		defer req.Release()
		h.OnDownloadProgress(req, current, total)
	})
}

func clientOnData(self *ClientObject, request *RequestObject, data []byte) {
	guard.Boundary(KindClient, "on-data", func() {
		state := refcount.Borrow[ClientObject, clientState](self)
		h, ok := state.get().(DataHandler)
		if !ok {
			return
		}
		req := NewRequest(refcount.Retain(request))
		defer req.Release()
		h.OnData(req, data)
	})
}

func clientGetCredentials(self *ClientObject, isProxy int32, host *capi.String, port int32, realm, scheme *capi.String, callback *AuthObject) int32 {
	return guard.BoundaryInt32(KindClient, "get-credentials", capi.CBool(false), func() int32 {
		state := refcount.Borrow[ClientObject, clientState](self)
		provider, ok := state.get().(CredentialsProvider)
		if !ok {
			return capi.CBool(false)
		}
		cont := NewAuthContinuation(refcount.Retain(callback))
		handled := provider.GetCredentials(
			capi.Bool(isProxy),
			host.Get(),
			uint16(port),
			realm.Get(),
			scheme.Get(),
			cont,
		)
		if !handled {
			// The provider declined; the continuation is dead weight.
			cont.Release()
		}
		return capi.CBool(handled)
	})
}
