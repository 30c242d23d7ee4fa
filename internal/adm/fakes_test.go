package adm

import (
	"io"
	"log/slog"
	"slices"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice is a scriptable ExternalDevice.
type fakeDevice struct {
	mu    sync.Mutex
	calls []string

	initCode      int32
	terminateCode int32
	startCode     int32
	playAvail     int32
	recAvail      int32
	stereoPlay    bool
	stereoRec     bool
	playDelay     int32
	recDelay      int32
	initialized   bool
	playWarning   bool

	recRegions  []Region
	playRegions []Region
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{playAvail: 1, recAvail: 1, playDelay: 20, recDelay: 30}
}

func (f *fakeDevice) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeDevice) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeDevice) count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeDevice) Init() int32 {
	f.record("Init")
	if f.initCode == 0 {
		f.initialized = true
	}
	return f.initCode
}

func (f *fakeDevice) Terminate() int32 {
	f.record("Terminate")
	f.initialized = false
	return f.terminateCode
}

func (f *fakeDevice) Initialized() bool            { f.record("Initialized"); return f.initialized }
func (f *fakeDevice) PlayoutIsAvailable() int32    { f.record("PlayoutIsAvailable"); return f.playAvail }
func (f *fakeDevice) RecordingIsAvailable() int32  { f.record("RecordingIsAvailable"); return f.recAvail }
func (f *fakeDevice) InitPlayout() int32           { f.record("InitPlayout"); return 0 }
func (f *fakeDevice) PlayoutIsInitialized() bool   { f.record("PlayoutIsInitialized"); return true }
func (f *fakeDevice) InitRecording() int32         { f.record("InitRecording"); return 0 }
func (f *fakeDevice) RecordingIsInitialized() bool { f.record("RecordingIsInitialized"); return true }
func (f *fakeDevice) StartPlayout() int32          { f.record("StartPlayout"); return f.startCode }
func (f *fakeDevice) StopPlayout() int32           { f.record("StopPlayout"); return 0 }
func (f *fakeDevice) Playing() bool                { f.record("Playing"); return false }
func (f *fakeDevice) StartRecording() int32        { f.record("StartRecording"); return f.startCode }
func (f *fakeDevice) StopRecording() int32         { f.record("StopRecording"); return 0 }
func (f *fakeDevice) Recording() bool              { f.record("Recording"); return false }

func (f *fakeDevice) StereoPlayoutIsAvailable() bool {
	f.record("StereoPlayoutIsAvailable")
	return f.stereoPlay
}

func (f *fakeDevice) StereoRecordingIsAvailable() bool {
	f.record("StereoRecordingIsAvailable")
	return f.stereoRec
}

func (f *fakeDevice) PlayoutDelay() int32   { f.record("PlayoutDelay"); return f.playDelay }
func (f *fakeDevice) RecordingDelay() int32 { f.record("RecordingDelay"); return f.recDelay }

func (f *fakeDevice) PlayoutWarning() bool   { f.record("PlayoutWarning"); return f.playWarning }
func (f *fakeDevice) PlayoutError() bool     { f.record("PlayoutError"); return false }
func (f *fakeDevice) RecordingWarning() bool { f.record("RecordingWarning"); return false }
func (f *fakeDevice) RecordingError() bool   { f.record("RecordingError"); return false }
func (f *fakeDevice) ClearPlayoutWarning()   { f.record("ClearPlayoutWarning"); f.playWarning = false }
func (f *fakeDevice) ClearPlayoutError()     { f.record("ClearPlayoutError") }
func (f *fakeDevice) ClearRecordingWarning() { f.record("ClearRecordingWarning") }
func (f *fakeDevice) ClearRecordingError()   { f.record("ClearRecordingError") }

func (f *fakeDevice) SetRecordingBuffer(r Region) {
	f.record("SetRecordingBuffer")
	f.mu.Lock()
	f.recRegions = append(f.recRegions, r)
	f.mu.Unlock()
}

func (f *fakeDevice) SetPlayoutBuffer(r Region) {
	f.record("SetPlayoutBuffer")
	f.mu.Lock()
	f.playRegions = append(f.playRegions, r)
	f.mu.Unlock()
}

func (f *fakeDevice) lastRecRegion() Region {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recRegions[len(f.recRegions)-1]
}

func (f *fakeDevice) lastPlayRegion() Region {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playRegions[len(f.playRegions)-1]
}

// recordingSink is a Sink that records every call.
type recordingSink struct {
	mu    sync.Mutex
	calls []string

	recRate, playRate uint32
	recCh, playCh     int

	recorded       []byte
	recordedFrames int
	playDelay      uint16
	recDelay       uint16
	drift          int

	attachErr  error
	setErr     error
	deliverErr error

	// requestFrames overrides the frame count returned by
	// RequestPlayoutData when non-nil.
	requestFrames func(frames int) int
	requestErr    error
	// getFrames overrides the count returned by GetPlayoutData.
	getFrames func(frames int) int
	fill      byte
	lastReq   int
}

func (s *recordingSink) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *recordingSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *recordingSink) SetRecordingSampleRate(hz uint32) error {
	s.record("SetRecordingSampleRate")
	s.recRate = hz
	return s.attachErr
}

func (s *recordingSink) SetPlayoutSampleRate(hz uint32) error {
	s.record("SetPlayoutSampleRate")
	s.playRate = hz
	return nil
}

func (s *recordingSink) SetRecordingChannels(channels int) error {
	s.record("SetRecordingChannels")
	s.recCh = channels
	return nil
}

func (s *recordingSink) SetPlayoutChannels(channels int) error {
	s.record("SetPlayoutChannels")
	s.playCh = channels
	return nil
}

func (s *recordingSink) SetRecordedBuffer(data []byte, frames int) error {
	s.record("SetRecordedBuffer")
	s.recorded = slices.Clone(data)
	s.recordedFrames = frames
	return s.setErr
}

func (s *recordingSink) SetVQEData(play, rec uint16, drift int) {
	s.record("SetVQEData")
	s.playDelay, s.recDelay, s.drift = play, rec, drift
}

func (s *recordingSink) DeliverRecordedData() error {
	s.record("DeliverRecordedData")
	return s.deliverErr
}

func (s *recordingSink) RequestPlayoutData(frames int) (int, error) {
	s.record("RequestPlayoutData")
	s.lastReq = frames
	if s.requestErr != nil {
		return 0, s.requestErr
	}
	if s.requestFrames != nil {
		return s.requestFrames(frames), nil
	}
	return frames, nil
}

func (s *recordingSink) GetPlayoutData(dst []byte) (int, error) {
	s.record("GetPlayoutData")
	for i := range dst {
		dst[i] = s.fill
	}
	if s.getFrames != nil {
		return s.getFrames(s.lastReq), nil
	}
	return s.lastReq, nil
}
