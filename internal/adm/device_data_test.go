package adm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attachedDevice(t *testing.T, opts Options) (*Device, *fakeDevice, *recordingSink) {
	t.Helper()
	ext := newFakeDevice()
	sink := &recordingSink{}
	d := newTestDevice(t, ext, opts)
	require.NoError(t, d.AttachAudioBuffer(sink))
	require.NoError(t, d.SetRecordingSampleRate(16000))
	require.NoError(t, d.SetPlayoutSampleRate(16000))
	return d, ext, sink
}

func TestDataIsRecordedWithoutSink(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	d := newTestDevice(t, ext, Options{})
	require.NoError(t, d.SetRecordingSampleRate(16000))

	assert.NotPanics(t, d.DataIsRecorded)
	assert.NotContains(t, ext.Calls(), "PlayoutDelay")
	assert.NotContains(t, ext.Calls(), "RecordingDelay")
}

func TestDataIsRecordedDeliversQuantum(t *testing.T) {
	t.Parallel()

	d, ext, sink := attachedDevice(t, Options{})
	region := ext.lastRecRegion()
	for i := range region.Bytes {
		region.Bytes[i] = byte(i)
	}

	d.DataIsRecorded()

	assert.Equal(t, region.Bytes, sink.recorded)
	assert.Equal(t, 160, sink.recordedFrames)
	assert.Equal(t, uint16(20), sink.playDelay)
	assert.Equal(t, uint16(30), sink.recDelay)
	assert.Zero(t, sink.drift)

	calls := sink.Calls()
	assert.Equal(t, []string{"SetRecordedBuffer", "SetVQEData", "DeliverRecordedData"}, calls[len(calls)-3:])

	extCalls := ext.Calls()
	assert.Equal(t, []string{"PlayoutDelay", "RecordingDelay"}, extCalls[len(extCalls)-2:])
}

func TestDataIsRecordedAbortsOnDelayFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		playDelay int32
		recDelay  int32
	}{
		{"playout delay", -1, 10},
		{"recording delay", 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ext, sink := attachedDevice(t, Options{})
			ext.playDelay = tt.playDelay
			ext.recDelay = tt.recDelay

			d.DataIsRecorded()

			assert.Contains(t, sink.Calls(), "SetRecordedBuffer")
			assert.NotContains(t, sink.Calls(), "SetVQEData")
			assert.NotContains(t, sink.Calls(), "DeliverRecordedData")
		})
	}
}

func TestDataIsRecordedDeliveryFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	d, _, sink := attachedDevice(t, Options{})
	sink.deliverErr = errors.New("pipeline stopped")

	d.DataIsRecorded()
	d.DataIsRecorded()

	n := 0
	for _, c := range sink.Calls() {
		if c == "DeliverRecordedData" {
			n++
		}
	}
	assert.Equal(t, 2, n, "one delivery attempt per quantum")
}

func TestGetPlayoutDataCopiesQuantum(t *testing.T) {
	t.Parallel()

	d, ext, sink := attachedDevice(t, Options{})
	sink.fill = 0x11

	d.GetPlayoutData()

	assert.Equal(t, 160, sink.lastReq)
	region := ext.lastPlayRegion()
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 320), region.Bytes)
}

func TestGetPlayoutDataUnderrun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		frames  func(int) int
		err     error
		policy  UnderrunPolicy
		wantHex byte
	}{
		{"zero frames preserves", func(int) int { return 0 }, nil, UnderrunPreserve, 0x5A},
		{"partial quantum preserves", func(n int) int { return n / 2 }, nil, UnderrunPreserve, 0x5A},
		{"sink error preserves", nil, errors.New("no data"), UnderrunPreserve, 0x5A},
		{"zero frames with silence", func(int) int { return 0 }, nil, UnderrunSilence, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ext, sink := attachedDevice(t, Options{UnderrunPolicy: tt.policy})
			sink.requestFrames = tt.frames
			sink.requestErr = tt.err
			sink.fill = 0xFF

			region := ext.lastPlayRegion()
			for i := range region.Bytes {
				region.Bytes[i] = 0x5A
			}

			assert.NotPanics(t, d.GetPlayoutData)
			assert.NotContains(t, sink.Calls(), "GetPlayoutData")
			assert.Equal(t, bytes.Repeat([]byte{tt.wantHex}, 320), region.Bytes)
		})
	}
}

func TestGetPlayoutDataWithoutSink(t *testing.T) {
	t.Parallel()

	d := newTestDevice(t, newFakeDevice(), Options{})
	require.NoError(t, d.SetPlayoutSampleRate(16000))
	assert.NotPanics(t, d.GetPlayoutData)
}

func TestGetPlayoutDataInvariantViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		request func(int) int
		get     func(int) int
		op      string
	}{
		{"sink over-delivers", func(n int) int { return n + 1 }, nil, "RequestPlayoutData"},
		{"copy count differs", nil, func(n int) int { return n - 1 }, "GetPlayoutData"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" strict", func(t *testing.T) {
			d, _, sink := attachedDevice(t, Options{})
			sink.requestFrames = tt.request
			sink.getFrames = tt.get

			recovered := func() (r any) {
				defer func() { r = recover() }()
				d.GetPlayoutData()
				return nil
			}()
			v, ok := recovered.(*InvariantError)
			require.True(t, ok, "panic value is %T", recovered)
			assert.Equal(t, tt.op, v.Op)
			assert.Equal(t, 160, v.Expected)
			assert.ErrorIs(t, v, ErrInvariant)

			// The buffer lock was released by the panic.
			assert.Equal(t, 160, d.playBuf.Frames())
		})

		t.Run(tt.name+" relaxed", func(t *testing.T) {
			d, _, sink := attachedDevice(t, Options{RelaxedChecks: true})
			sink.requestFrames = tt.request
			sink.getFrames = tt.get
			assert.NotPanics(t, d.GetPlayoutData)
		})
	}
}

func TestDataPathBeforeSampleRate(t *testing.T) {
	t.Parallel()

	ext := newFakeDevice()
	sink := &recordingSink{}
	d := newTestDevice(t, ext, Options{})
	require.NoError(t, d.AttachAudioBuffer(sink))

	assert.NotPanics(t, d.DataIsRecorded)
	assert.NotPanics(t, d.GetPlayoutData)
	assert.NotContains(t, sink.Calls(), "SetRecordedBuffer")
	assert.NotContains(t, sink.Calls(), "RequestPlayoutData")
}
