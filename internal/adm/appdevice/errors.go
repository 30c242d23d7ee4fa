package appdevice

import "github.com/xfrag/webrtc/internal/errors"

var (
	// ErrConcurrentAccess is returned when two goroutines exchange data in
	// the same direction at the same time.
	ErrConcurrentAccess = errors.Newf("concurrent access to device buffer").
				Component("appdevice").
				Category(errors.CategoryConflict).
				Build()

	// ErrNotWrapped is returned when data arrives before Wrap.
	ErrNotWrapped = errors.Newf("device is not wrapped by a module").
			Component("appdevice").
			Category(errors.CategoryState).
			Build()

	// ErrNoBuffer is returned when data arrives before the adapter published
	// a buffer for the direction.
	ErrNoBuffer = errors.Newf("no buffer published for this direction").
			Component("appdevice").
			Category(errors.CategoryBuffer).
			Build()

	// ErrAlreadyWrapped is returned by a second Wrap.
	ErrAlreadyWrapped = errors.Newf("device is already wrapped by a module").
				Component("appdevice").
				Category(errors.CategoryConflict).
				Build()
)
