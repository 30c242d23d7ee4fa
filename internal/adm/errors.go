package adm

import (
	"fmt"

	"github.com/xfrag/webrtc/internal/errors"
)

// Sentinel errors returned by the adapter.
var (
	// ErrNotSupported is returned by operations the external device has no
	// equivalent for. Callers are expected to tolerate it.
	ErrNotSupported = errors.Newf("operation not supported by the external device").
			Component("adm").
			Category(errors.CategoryNotSupported).
			Build()

	// ErrNoSink is returned when a buffer sink is required but none is attached.
	ErrNoSink = errors.Newf("no audio buffer sink attached").
			Component("adm").
			Category(errors.CategoryState).
			Build()

	// ErrActiveReferences is returned when a module is disposed while other
	// holders still reference it.
	ErrActiveReferences = errors.Newf("module has active references and cannot be safely disposed; dispose the holders (for example the transport engine) first").
				Component("adm").
				Category(errors.CategoryLifetime).
				Priority(errors.PriorityHigh).
				Build()

	// ErrInvalidBufferConfig is returned when a sample rate and channel
	// combination cannot be turned into a usable quantum buffer.
	ErrInvalidBufferConfig = errors.Newf("invalid sample buffer configuration").
				Component("adm").
				Category(errors.CategoryBuffer).
				Build()

	// ErrBufferAllocation is returned when the allocator fails.
	ErrBufferAllocation = errors.Newf("sample buffer allocation failed").
				Component("adm").
				Category(errors.CategoryBuffer).
				Priority(errors.PriorityCritical).
				Build()

	// ErrThreadAffinity is wrapped by ThreadViolationError.
	ErrThreadAffinity = errors.Newf("control path called from a goroutine other than the bound one").
				Component("adm").
				Category(errors.CategoryThreading).
				Priority(errors.PriorityCritical).
				Build()

	// ErrInvariant is wrapped by InvariantError.
	ErrInvariant = errors.Newf("data path invariant violated").
			Component("adm").
			Category(errors.CategoryState).
			Priority(errors.PriorityCritical).
			Build()

	// ErrDisposed is returned when a destroyed module is used.
	ErrDisposed = errors.Newf("module already destroyed").
			Component("adm").
			Category(errors.CategoryLifetime).
			Build()

	// ErrDelegation is wrapped by every StatusError.
	ErrDelegation = errors.Newf("external device reported failure").
			Component("adm").
			Category(errors.CategoryAudioDevice).
			Build()
)

// StatusError carries a non-zero status returned by the external device.
type StatusError struct {
	Op   string
	Code int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("adm: %s: external device returned status %d", e.Op, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrDelegation }

// Status maps an adapter error back to the integer convention of the generic
// device module contract: 0 on success, the verbatim device code for a
// delegation failure and -1 for anything else.
func Status(err error) int32 {
	if err == nil {
		return 0
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return -1
}

// ThreadViolationError is the panic value raised when a control-path
// operation runs on a goroutine other than the bound one.
type ThreadViolationError struct {
	Op     string
	Bound  uint64
	Caller uint64
}

func (e *ThreadViolationError) Error() string {
	return fmt.Sprintf("adm: %s called on goroutine %d, bound to goroutine %d", e.Op, e.Caller, e.Bound)
}

func (e *ThreadViolationError) Unwrap() error { return ErrThreadAffinity }

// InvariantError reports that the sink and the adapter disagree on the
// quantum size, which means they drifted apart on sample rate.
type InvariantError struct {
	Op       string
	Expected int
	Got      int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("adm: %s: sink returned %d frames, expected %d", e.Op, e.Got, e.Expected)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }
