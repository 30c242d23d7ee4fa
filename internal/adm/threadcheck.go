package adm

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
)

// ViolationHandler is called when a checked operation runs on the wrong
// goroutine.
type ViolationHandler func(*ThreadViolationError)

// ThreadChecker binds control-path calls to one goroutine. The binding is
// taken by the first checked call after construction or Detach.
type ThreadChecker struct {
	owner     atomic.Uint64 // 0 while detached
	onViolate ViolationHandler
}

// NewThreadChecker returns a detached checker. A nil handler panics with the
// violation.
func NewThreadChecker(handler ViolationHandler) *ThreadChecker {
	if handler == nil {
		handler = func(v *ThreadViolationError) { panic(v) }
	}
	return &ThreadChecker{onViolate: handler}
}

// Bind binds the checker to the calling goroutine if it is detached.
func (c *ThreadChecker) Bind() {
	c.owner.CompareAndSwap(0, goroutineID())
}

// CalledOnValidThread binds if detached and reports whether the caller is
// the bound goroutine.
func (c *ThreadChecker) CalledOnValidThread() bool {
	id := goroutineID()
	if c.owner.CompareAndSwap(0, id) {
		return true
	}
	return c.owner.Load() == id
}

// Check calls the violation handler when the caller is not the bound
// goroutine.
func (c *ThreadChecker) Check(op string) {
	id := goroutineID()
	if c.owner.CompareAndSwap(0, id) {
		return
	}
	if bound := c.owner.Load(); bound != id {
		c.onViolate(&ThreadViolationError{Op: op, Bound: bound, Caller: id})
	}
}

// Detach releases the binding so the next checked call may bind anew.
func (c *ThreadChecker) Detach() {
	c.owner.Store(0)
}

// Bound reports whether a goroutine currently holds the binding.
func (c *ThreadChecker) Bound() bool {
	return c.owner.Load() != 0
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the id from the first line of the current stack trace,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	line := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(line, ' '); i > 0 {
		line = line[:i]
	}
	id, err := strconv.ParseUint(string(line), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
