package wrap

import (
	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/refcount"
)

// AuthObject is the foreign shape of an authentication continuation: a
// callback object the foreign side hands to GetCredentials so the answer
// can arrive later, from any thread.
type AuthObject struct {
	capi.Base
	Continue func(self *AuthObject, username, password *capi.String)
	Cancel   func(self *AuthObject)
}

// AuthContinuation owns one refcount unit on a foreign continuation
// object. Call exactly one of Continue or Cancel; both consume the
// continuation. An abandoned continuation must be Released explicitly.
type AuthContinuation struct {
	ptr refcount.Ptr[AuthObject]
}

// NewAuthContinuation takes ownership of the handle's refcount unit.
func NewAuthContinuation(p refcount.Ptr[AuthObject]) *AuthContinuation {
	return &AuthContinuation{ptr: p}
}

// IsNil reports an absent continuation.
func (a *AuthContinuation) IsNil() bool { return a.ptr.IsNil() }

// Continue resumes the foreign operation with credentials and consumes
// the continuation. Unsupported slots degrade to releasing only.
func (a *AuthContinuation) Continue(username, password string) {
	raw := a.ptr.Raw()
	if raw != nil && raw.Continue != nil {
		raw.Continue(raw, capi.NewString(username), capi.NewString(password))
	}
	a.ptr.Release()
}

// Cancel aborts the foreign operation and consumes the continuation.
func (a *AuthContinuation) Cancel() {
	raw := a.ptr.Raw()
	if raw != nil && raw.Cancel != nil {
		raw.Cancel(raw)
	}
	a.ptr.Release()
}

// Release abandons the continuation without answering it.
func (a *AuthContinuation) Release() {
	a.ptr.Release()
}
