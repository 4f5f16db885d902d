// Package goid extracts the current goroutine's id from the runtime stack
// header. The id is only used for diagnostic confinement checks; nothing
// in the bridge keys behavior off it.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Current returns the running goroutine's id, or 0 when the stack header
// cannot be parsed.
func Current() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	if !bytes.HasPrefix(buf, prefix) {
		return 0
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end <= 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
