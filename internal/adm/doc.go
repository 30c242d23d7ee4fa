// Package adm adapts an external audio device to the generic audio device
// module contract used by a real-time audio pipeline.
//
// The package is built from the following pieces:
//
//   - SampleBuffer owns the PCM region exchanged for one 10 ms quantum in each
//     direction. It reallocates only when the required size changes and
//     republishes the new region to the external device.
//   - ThreadChecker restricts control-path calls to a single goroutine per
//     session. It can be detached so that construction and teardown may happen
//     elsewhere.
//   - Device delegates the control path to an ExternalDevice. It answers
//     unsupported mixer and enumeration calls locally and runs the capture and
//     playout data paths against an attached Sink.
//   - Module wraps a Device in shared ownership and refuses to be disposed
//     while other holders remain.
//
// Data-path callbacks (DataIsRecorded, GetPlayoutData) are invoked by the
// external device from its own goroutine and are not subject to the affinity
// check. The buffer's mutex guards configuration and reallocation only. The
// bytes of a published region are read and written without it, by the one
// goroutine that drives that direction's data path, which fills or drains
// the region and calls back into the Device in the same call. Overlapping
// data-path calls for one direction are a device bug; appdevice rejects them
// with ErrConcurrentAccess.
package adm
