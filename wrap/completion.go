package wrap

import (
	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/guard"
	"github.com/embercef/bridge/oneshot"
	"github.com/embercef/bridge/refcount"
)

// CompletionFunc is a one-shot completion closure. The foreign side
// invokes its slot at most once; if it never does, the closure is dropped
// unseen when the last handle releases the object.
type CompletionFunc func(path string, ok bool)

// CompletionObject is the foreign shape of a wrapped completion closure.
type CompletionObject struct {
	capi.Base
	OnFinished func(self *CompletionObject, path *capi.String, ok int32)
}

type completionState struct {
	cell *oneshot.Cell[CompletionFunc]
}

func (s *completionState) Drop() {
	s.cell.Drop()
}

// WrapCompletion wraps a one-shot closure into a foreign-shaped callback
// object. The closure runs at most once no matter how often the foreign
// side fires the slot; a second invocation is a silent no-op.
func WrapCompletion(fn CompletionFunc) refcount.Ptr[CompletionObject] {
	slots := CompletionObject{OnFinished: completionOnFinished}
	return refcount.Wrap(slots, completionState{cell: oneshot.NewCell(fn)})
}

func completionOnFinished(self *CompletionObject, path *capi.String, ok int32) {
	guard.Boundary(KindCompletion, "on-finished", func() {
		state := refcount.Borrow[CompletionObject, completionState](self)
		fn, present := state.cell.Take()
		if !present {
			return
		}
		fn(path.Get(), capi.Bool(ok))
	})
}
