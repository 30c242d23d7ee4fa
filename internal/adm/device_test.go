package adm

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T, ext ExternalDevice, opts Options) *Device {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return NewDevice(ext, opts)
}

func TestDelegationStatus(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		ext := newFakeDevice()
		d := newTestDevice(t, ext, Options{})
		require.NoError(t, d.Init())
		assert.True(t, d.Initialized())
		assert.Equal(t, []string{"Init", "Initialized"}, ext.Calls())
	})

	t.Run("failure code is kept verbatim", func(t *testing.T) {
		ext := newFakeDevice()
		ext.initCode = -7
		d := newTestDevice(t, ext, Options{})

		err := d.Init()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDelegation)

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "Init", se.Op)
		assert.Equal(t, int32(-7), se.Code)
		assert.Equal(t, int32(-7), Status(err))
	})

	t.Run("start failure", func(t *testing.T) {
		ext := newFakeDevice()
		ext.startCode = -1
		d := newTestDevice(t, ext, Options{})
		assert.Equal(t, int32(-1), Status(d.StartPlayout()))
		assert.Equal(t, int32(-1), Status(d.StartRecording()))
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(0), Status(nil))
	assert.Equal(t, int32(-3), Status(&StatusError{Op: "Init", Code: -3}))
	assert.Equal(t, int32(-1), Status(ErrNotSupported))
	assert.Equal(t, int32(-1), Status(ErrActiveReferences))
}

func TestAvailability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw       int32
		available bool
		wantErr   bool
	}{
		{1, true, false},
		{0, false, false},
		{2, false, false},
		{-1, false, true},
	}

	for _, tt := range tests {
		ext := newFakeDevice()
		ext.playAvail = tt.raw
		ext.recAvail = tt.raw
		d := newTestDevice(t, ext, Options{})

		for _, query := range []func() (bool, error){d.PlayoutIsAvailable, d.RecordingIsAvailable} {
			available, err := query()
			assert.Equal(t, tt.available, available, "raw %d", tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDelegation)
			} else {
				assert.NoError(t, err)
			}
		}
	}
}

func TestDelayMasking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     int32
		want    uint16
		wantErr bool
	}{
		{"zero", 0, 0, false},
		{"typical", 150, 150, false},
		{"max", 65535, 65535, false},
		{"wraps at 16 bits", 65536, 0, false},
		{"masked", 70000, 70000 & 0xFFFF, false},
		{"negative fails", -1, 0, true},
		{"large negative fails", -65536, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := newFakeDevice()
			ext.playDelay = tt.raw
			ext.recDelay = tt.raw
			d := newTestDevice(t, ext, Options{})

			for _, query := range []func() (uint16, error){d.PlayoutDelay, d.RecordingDelay} {
				ms, err := query()
				assert.Equal(t, tt.want, ms)
				if tt.wantErr {
					assert.Equal(t, tt.raw, Status(err))
				} else {
					assert.NoError(t, err)
				}
			}
		})
	}
}

func TestAffinityCheckedOperations(t *testing.T) {
	t.Parallel()

	checked := map[string]func(d *Device){
		"Init":                       func(d *Device) { _ = d.Init() },
		"Terminate":                  func(d *Device) { _ = d.Terminate() },
		"Initialized":                func(d *Device) { d.Initialized() },
		"PlayoutIsAvailable":         func(d *Device) { _, _ = d.PlayoutIsAvailable() },
		"InitPlayout":                func(d *Device) { _ = d.InitPlayout() },
		"PlayoutIsInitialized":       func(d *Device) { d.PlayoutIsInitialized() },
		"RecordingIsAvailable":       func(d *Device) { _, _ = d.RecordingIsAvailable() },
		"InitRecording":              func(d *Device) { _ = d.InitRecording() },
		"RecordingIsInitialized":     func(d *Device) { d.RecordingIsInitialized() },
		"StartPlayout":               func(d *Device) { _ = d.StartPlayout() },
		"StopPlayout":                func(d *Device) { _ = d.StopPlayout() },
		"Playing":                    func(d *Device) { d.Playing() },
		"StartRecording":             func(d *Device) { _ = d.StartRecording() },
		"StopRecording":              func(d *Device) { _ = d.StopRecording() },
		"Recording":                  func(d *Device) { d.Recording() },
		"StereoPlayoutIsAvailable":   func(d *Device) { d.StereoPlayoutIsAvailable() },
		"StereoPlayout":              func(d *Device) { d.StereoPlayout() },
		"StereoRecordingIsAvailable": func(d *Device) { d.StereoRecordingIsAvailable() },
		"SetStereoRecording":         func(d *Device) { _ = d.SetStereoRecording(true) },
		"StereoRecording":            func(d *Device) { d.StereoRecording() },
		"SetRecordingSampleRate":     func(d *Device) { _ = d.SetRecordingSampleRate(16000) },
		"SetPlayoutSampleRate":       func(d *Device) { _ = d.SetPlayoutSampleRate(16000) },
	}

	for op, call := range checked {
		t.Run(op, func(t *testing.T) {
			d := newTestDevice(t, newFakeDevice(), Options{})
			d.ThreadChecker().Bind()

			recovered := onOtherGoroutine(func() { call(d) })
			v, ok := recovered.(*ThreadViolationError)
			require.True(t, ok, "expected a thread violation panic, got %v", recovered)
			assert.Equal(t, op, v.Op)
		})
	}
}

func TestUncheckedOperations(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{})
	d.ThreadChecker().Bind()

	recovered := onOtherGoroutine(func() {
		_ = d.SetAGC(true)
		d.AGC()
		_ = d.SetStereoPlayout(true)
		_, _ = d.PlayoutDelay()
		_, _ = d.RecordingDelay()
		d.PlayoutWarning()
		d.PlayoutError()
		d.RecordingWarning()
		d.RecordingError()
		d.ClearPlayoutWarning()
		d.ClearPlayoutError()
		d.ClearRecordingWarning()
		d.ClearRecordingError()
		_, _ = d.CPULoad()
		_ = d.AttachAudioBuffer(&recordingSink{})
		d.DataIsRecorded()
		d.GetPlayoutData()
	})
	assert.Nil(t, recovered)
	assert.True(t, d.AGC())
}

func TestRelaxedChecksLogViolations(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDevice(newFakeDevice(), Options{Logger: logger, RelaxedChecks: true})
	d.ThreadChecker().Bind()

	recovered := onOtherGoroutine(func() { _ = d.StartPlayout() })
	assert.Nil(t, recovered)
	assert.Contains(t, buf.String(), "thread affinity violation")
	assert.Contains(t, buf.String(), "operation=StartPlayout")
}

func TestAGCConcurrentAccess(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t, newFakeDevice(), Options{})
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.SetAGC(i%2 == 0)
			d.AGC()
		}()
	}
	wg.Wait()
}

func TestStereoFlags(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t, newFakeDevice(), Options{})
	assert.False(t, d.StereoPlayout())
	assert.False(t, d.StereoRecording())

	require.NoError(t, d.SetStereoPlayout(true))
	require.NoError(t, d.SetStereoRecording(true))
	assert.True(t, d.StereoPlayout())
	assert.True(t, d.StereoRecording())

	require.NoError(t, d.SetStereoPlayout(false))
	assert.False(t, d.StereoPlayout())
}

func TestStereoToggleRestoresMonoBuffer(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{})
	require.NoError(t, d.AttachAudioBuffer(&recordingSink{}))

	require.NoError(t, d.SetPlayoutSampleRate(48000))
	mono := d.PlayoutRegion()
	assert.Len(t, mono.Bytes, 960)

	require.NoError(t, d.SetStereoPlayout(true))
	require.NoError(t, d.SetPlayoutSampleRate(48000))
	assert.Len(t, d.PlayoutRegion().Bytes, 1920)
	assert.Equal(t, Stereo, d.PlayoutRegion().Channels)

	require.NoError(t, d.SetStereoPlayout(false))
	require.NoError(t, d.SetPlayoutSampleRate(48000))
	assert.False(t, d.StereoPlayout())
	assert.Len(t, d.PlayoutRegion().Bytes, 960)
	assert.Equal(t, Mono, d.PlayoutRegion().Channels)
	assert.Equal(t, 3, ext.count("SetPlayoutBuffer"))
}

func TestSampleRateConfiguresAndRepublishes(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	sink := &recordingSink{}
	d := newTestDevice(t, ext, Options{})
	require.NoError(t, d.AttachAudioBuffer(sink))

	require.NoError(t, d.SetRecordingSampleRate(16000))
	assert.Equal(t, uint32(16000), sink.recRate)
	require.Equal(t, 1, ext.count("SetRecordingBuffer"))
	published := ext.lastRecRegion()
	assert.Equal(t, 160, published.Frames)
	assert.Len(t, published.Bytes, 320)

	require.NoError(t, d.SetRecordingSampleRate(16000))
	assert.Equal(t, 1, ext.count("SetRecordingBuffer"), "unchanged size must not republish")

	require.NoError(t, d.SetStereoRecording(true))
	require.NoError(t, d.SetRecordingSampleRate(48000))
	assert.Equal(t, 2, ext.count("SetRecordingBuffer"))
	republished := ext.lastRecRegion()
	assert.Equal(t, 480, republished.Frames)
	assert.Len(t, republished.Bytes, 1920)
	assert.Greater(t, republished.Generation, published.Generation)
	assert.Equal(t, republished.Generation, d.RecordingRegion().Generation)
	assert.Zero(t, ext.count("SetPlayoutBuffer"))
}

func TestSampleRateWithoutSink(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{})
	require.NoError(t, d.SetPlayoutSampleRate(8000))
	assert.Len(t, d.PlayoutRegion().Bytes, 160)
}

func TestFailedReconfigurationKeepsPublishedRegion(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{MaxBufferBytes: 1000})
	require.NoError(t, d.AttachAudioBuffer(&recordingSink{}))
	require.NoError(t, d.SetPlayoutSampleRate(16000))
	published := ext.lastPlayRegion()

	require.NoError(t, d.SetStereoPlayout(true))
	err := d.SetPlayoutSampleRate(48000)
	require.ErrorIs(t, err, ErrInvalidBufferConfig)

	assert.Equal(t, 1, ext.count("SetPlayoutBuffer"))
	assert.Equal(t, published.Generation, d.PlayoutRegion().Generation)
	assert.Same(t, &published.Bytes[0], &d.PlayoutRegion().Bytes[0])
}

func TestAttachAudioBufferResetsSink(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t, newFakeDevice(), Options{})
	sink := &recordingSink{recRate: 44100, playRate: 44100, recCh: 2, playCh: 2}

	require.NoError(t, d.AttachAudioBuffer(sink))
	assert.Zero(t, sink.recRate)
	assert.Zero(t, sink.playRate)
	assert.Equal(t, 1, sink.recCh)
	assert.Equal(t, 1, sink.playCh)

	assert.ErrorIs(t, d.AttachAudioBuffer(nil), ErrNoSink)
}

func TestCloseTerminatesOnceAndReleasesBuffers(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{})
	require.NoError(t, d.Init())
	require.NoError(t, d.SetRecordingSampleRate(16000))
	require.NoError(t, d.SetPlayoutSampleRate(16000))

	recovered := onOtherGoroutine(func() {
		assert.NoError(t, d.Close())
	})
	assert.Nil(t, recovered, "close detaches the guard before terminating")
	assert.NoError(t, d.Close())

	assert.Equal(t, 1, ext.count("Terminate"))
	assert.False(t, d.RecordingRegion().Valid())
	assert.False(t, d.PlayoutRegion().Valid())
}
