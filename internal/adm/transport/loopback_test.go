package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfrag/webrtc/internal/adm"
)

func monoFrame(rate uint32, samples ...int16) Frame {
	return Frame{Data: pcm(samples...), Frames: len(samples), Channels: adm.Mono, SampleRate: rate}
}

func TestLoopbackRoundTrip(t *testing.T) {
	t.Parallel()
	l := NewLoopback(100, discardLogger())

	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(8000, 1, 2, 3, 4)))
	assert.Equal(t, 8, l.Buffered())

	dst := make([]byte, 4)
	n, err := l.NeedMorePlayData(2, 2, adm.Mono, 8000, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, pcm(1, 2), dst)

	n, err = l.NeedMorePlayData(2, 2, adm.Mono, 8000, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, pcm(3, 4), dst)
	assert.Zero(t, l.Buffered())
}

func TestLoopbackUnderrun(t *testing.T) {
	t.Parallel()
	l := NewLoopback(100, discardLogger())
	dst := make([]byte, 8)

	n, err := l.NeedMorePlayData(4, 2, adm.Mono, 8000, dst)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing recorded yet")

	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(8000, 1, 2, 3)))
	n, err = l.NeedMorePlayData(4, 2, adm.Mono, 8000, dst)
	require.NoError(t, err)
	assert.Zero(t, n, "less than a request is buffered")
	assert.Equal(t, 6, l.Buffered(), "a short read leaves the buffer intact")
}

func TestLoopbackChannelConversion(t *testing.T) {
	t.Parallel()

	t.Run("mono to stereo", func(t *testing.T) {
		t.Parallel()
		l := NewLoopback(100, discardLogger())
		require.NoError(t, l.RecordedDataIsAvailable(monoFrame(8000, 5, -6)))

		dst := make([]byte, 8)
		n, err := l.NeedMorePlayData(2, 4, adm.Stereo, 8000, dst)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, pcm(5, 5, -6, -6), dst)
	})

	t.Run("stereo to mono", func(t *testing.T) {
		t.Parallel()
		l := NewLoopback(100, discardLogger())
		require.NoError(t, l.RecordedDataIsAvailable(Frame{
			Data: pcm(10, 20, -3, -5), Frames: 2, Channels: adm.Stereo, SampleRate: 8000,
		}))

		dst := make([]byte, 4)
		n, err := l.NeedMorePlayData(2, 2, adm.Mono, 8000, dst)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, pcm(15, -4), dst)
	})
}

func TestLoopbackRateMismatch(t *testing.T) {
	t.Parallel()
	l := NewLoopback(100, discardLogger())
	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(16000, 1, 2)))

	dst := make([]byte, 4)
	n, err := l.NeedMorePlayData(2, 2, adm.Mono, 48000, dst)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), l.RateMismatches())
	assert.Equal(t, 4, l.Buffered())
}

func TestLoopbackDropsOldest(t *testing.T) {
	t.Parallel()
	// 10 ms at 1 kHz mono is 10 samples.
	l := NewLoopback(10, discardLogger())

	first := make([]int16, 8)
	for i := range first {
		first[i] = int16(i + 1)
	}
	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(1000, first...)))
	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(1000, 100, 101, 102, 103)))

	assert.Equal(t, int64(4), l.Dropped(), "two samples overflowed")
	assert.Equal(t, 20, l.Buffered())

	dst := make([]byte, 20)
	n, err := l.NeedMorePlayData(10, 2, adm.Mono, 1000, dst)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, pcm(3, 4, 5, 6, 7, 8, 100, 101, 102, 103), dst)
}

func TestLoopbackOversizedFrame(t *testing.T) {
	t.Parallel()
	l := NewLoopback(10, discardLogger())

	samples := make([]int16, 12)
	for i := range samples {
		samples[i] = int16(i)
	}
	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(1000, samples...)))
	assert.Equal(t, int64(4), l.Dropped())

	dst := make([]byte, 20)
	n, err := l.NeedMorePlayData(10, 2, adm.Mono, 1000, dst)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, pcm(2, 3, 4, 5, 6, 7, 8, 9, 10, 11), dst)
}

func TestLoopbackHoldsWholeQuantaAt44100(t *testing.T) {
	t.Parallel()
	const rate = 44100
	frames := adm.FramesPerBuffer(rate)
	l := NewLoopback(10, discardLogger())

	quantum := make([]int16, frames)
	for i := range quantum {
		quantum[i] = int16(i)
	}
	for range 3 {
		require.NoError(t, l.RecordedDataIsAvailable(monoFrame(rate, quantum...)))
	}
	assert.Equal(t, frames*adm.BytesPerSample, l.Buffered())

	dst := make([]byte, frames*adm.BytesPerSample)
	n, err := l.NeedMorePlayData(frames, adm.BytesPerSample, adm.Mono, rate, dst)
	require.NoError(t, err)
	assert.Equal(t, frames, n)
	assert.Equal(t, pcm(quantum...), dst)
}

func TestRingFrames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		rate     uint32
		bufferMS int
		want     int
	}{
		{"exact", 8000, 100, 800},
		{"rounded up", 44100, 15, 662},
		{"one quantum at 44.1 kHz", 44100, 10, 441},
		{"at least one quantum", 48000, 1, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ringFrames(tt.rate, tt.bufferMS))
		})
	}
}

func TestLoopbackFormatChange(t *testing.T) {
	t.Parallel()
	l := NewLoopback(100, discardLogger())

	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(8000, 1, 2)))
	require.NoError(t, l.RecordedDataIsAvailable(monoFrame(16000, 7)))
	assert.Equal(t, int64(4), l.Dropped(), "audio in the old format is discarded")
	assert.Equal(t, 2, l.Buffered())
}

func TestLoopbackValidation(t *testing.T) {
	t.Parallel()
	l := NewLoopback(100, discardLogger())

	assert.ErrorIs(t, l.RecordedDataIsAvailable(Frame{Data: pcm(1), Frames: 1, Channels: 3}), ErrInvalidFormat)
	assert.ErrorIs(t, l.RecordedDataIsAvailable(Frame{Data: pcm(1), Frames: 2, Channels: 1}), ErrInvalidFormat)

	_, err := l.NeedMorePlayData(2, 2, adm.Stereo, 8000, make([]byte, 8))
	assert.ErrorIs(t, err, ErrInvalidFormat, "bytes per frame must match the channel count")
	_, err = l.NeedMorePlayData(4, 2, adm.Mono, 8000, make([]byte, 4))
	assert.ErrorIs(t, err, ErrInvalidFormat, "destination too small")
}
