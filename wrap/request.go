package wrap

import (
	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/refcount"
)

// Object kind names used for registry pins and diagnostics.
const (
	KindRequest    = "request"
	KindClient     = "client"
	KindAuth       = "auth-continuation"
	KindCompletion = "completion"
)

// Status reports the terminal state of a request. Crosses the boundary as
// a small integer.
type Status int32

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusIOPending
	StatusCanceled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusIOPending:
		return "io-pending"
	case StatusCanceled:
		return "canceled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RequestObject is the foreign shape of a request. Instances originate on
// the foreign side; safe code only ever receives pointers to them and
// calls through whatever slots are populated.
type RequestObject struct {
	capi.Base
	GetURL    func(self *RequestObject) *capi.String
	GetStatus func(self *RequestObject) int32
	Cancel    func(self *RequestObject)
}

// Request is the safe view over an owned request handle. The zero Request
// is absent; every accessor on it returns its documented default.
type Request struct {
	ptr refcount.Ptr[RequestObject]
}

// NewRequest wraps an owning handle. Ownership of the handle's refcount
// unit moves into the Request.
func NewRequest(p refcount.Ptr[RequestObject]) Request {
	return Request{ptr: p}
}

// Handle exposes the owning handle without transferring ownership.
func (r Request) Handle() refcount.Ptr[RequestObject] { return r.ptr }

// IsNil reports an absent request.
func (r Request) IsNil() bool { return r.ptr.IsNil() }

// Clone takes a new refcount unit so the request can outlive the call
// that delivered it.
func (r Request) Clone() Request {
	return Request{ptr: r.ptr.Clone()}
}

// Release gives up this view's refcount unit.
func (r *Request) Release() {
	r.ptr.Release()
}

// URL returns the request URL, or "" when the object is absent or the
// slot is unsupported.
func (r Request) URL() string {
	raw := r.ptr.Raw()
	if raw == nil || raw.GetURL == nil {
		return ""
	}
	return raw.GetURL(raw).Get()
}

// Status returns the request status, or StatusUnknown when the object is
// absent or the slot is unsupported.
func (r Request) Status() Status {
	raw := r.ptr.Raw()
	if raw == nil || raw.GetStatus == nil {
		return StatusUnknown
	}
	return Status(raw.GetStatus(raw))
}

// Cancel cancels the request. A no-op when the object is absent or the
// slot is unsupported.
func (r Request) Cancel() {
	raw := r.ptr.Raw()
	if raw == nil || raw.Cancel == nil {
		return
	}
	raw.Cancel(raw)
}
