// Package appdevice provides Host, a reusable adm.ExternalDevice that turns a
// small Backend into a complete external device. Host keeps the per-direction
// state machine, checks channel counts against stereo availability and
// splits arbitrary reads and writes into 10 ms quanta for the adapter.
package appdevice

import "sync/atomic"

// Port is the data surface a backend pushes captured audio into and pulls
// playout audio from. Both calls accept any length.
type Port interface {
	DataIsRecorded(p []byte) error
	GetPlayoutData(p []byte) error
}

// Backend implements the device specific part of an external device.
type Backend interface {
	// Attach hands the backend the port it exchanges audio through.
	Attach(port Port)

	OnInit() error
	OnTerminate() error

	// PlayoutIsAvailable and RecordingIsAvailable return 1 when available,
	// 0 when not and a negative value on failure.
	PlayoutIsAvailable() int32
	RecordingIsAvailable() int32

	OnInitPlayout() error
	PlayoutSampleRate() int64
	OnInitRecording() error
	RecordingSampleRate() int64

	OnStartPlayout() error
	OnStopPlayout() error
	OnStartRecording() error
	OnStopRecording() error

	// Delays in milliseconds, negative on failure.
	PlayoutDelay() int32
	RecordingDelay() int32

	StereoPlayoutIsAvailable() bool
	StereoRecordingIsAvailable() bool

	PlayoutWarning() bool
	PlayoutError() bool
	RecordingWarning() bool
	RecordingError() bool
	ClearPlayoutWarning()
	ClearPlayoutError()
	ClearRecordingWarning()
	ClearRecordingError()
}

// StatusFlags implements the warning and error flag part of Backend. Embed it
// and call the Set methods from the audio goroutines.
type StatusFlags struct {
	playoutWarning   atomic.Bool
	playoutError     atomic.Bool
	recordingWarning atomic.Bool
	recordingError   atomic.Bool
}

func (s *StatusFlags) PlayoutWarning() bool   { return s.playoutWarning.Load() }
func (s *StatusFlags) PlayoutError() bool     { return s.playoutError.Load() }
func (s *StatusFlags) RecordingWarning() bool { return s.recordingWarning.Load() }
func (s *StatusFlags) RecordingError() bool   { return s.recordingError.Load() }

func (s *StatusFlags) ClearPlayoutWarning()   { s.playoutWarning.Store(false) }
func (s *StatusFlags) ClearPlayoutError()     { s.playoutError.Store(false) }
func (s *StatusFlags) ClearRecordingWarning() { s.recordingWarning.Store(false) }
func (s *StatusFlags) ClearRecordingError()   { s.recordingError.Store(false) }

func (s *StatusFlags) SetPlayoutWarning()   { s.playoutWarning.Store(true) }
func (s *StatusFlags) SetPlayoutError()     { s.playoutError.Store(true) }
func (s *StatusFlags) SetRecordingWarning() { s.recordingWarning.Store(true) }
func (s *StatusFlags) SetRecordingError()   { s.recordingError.Store(true) }
