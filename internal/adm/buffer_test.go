package adm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantumSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate     uint32
		channels int
		frames   int
		size     int
	}{
		{8000, 1, 80, 160},
		{16000, 1, 160, 320},
		{16000, 2, 160, 640},
		{22050, 1, 220, 440},
		{44100, 1, 441, 882},
		{44100, 2, 441, 1764},
		{48000, 2, 480, 1920},
		{99, 1, 0, 0},
	}

	for _, tt := range tests {
		frames, size := QuantumSize(tt.rate, tt.channels)
		assert.Equal(t, tt.frames, frames, "frames at %d Hz", tt.rate)
		assert.Equal(t, tt.size, size, "size at %d Hz x%d", tt.rate, tt.channels)
		assert.Equal(t, int(tt.rate)/100, FramesPerBuffer(tt.rate))
	}
}

func TestSampleBufferReconfiguration(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(DirectionRecording, 0, nil)
	assert.False(t, b.Region().Valid())

	res, err := b.Configure(16000, Mono)
	require.NoError(t, err)
	assert.True(t, res.Reallocated)
	assert.Equal(t, 160, res.Frames)
	assert.Equal(t, 320, res.Size)
	assert.Equal(t, uint64(1), res.Region.Generation)
	first := b.Region()

	res, err = b.Configure(16000, Mono)
	require.NoError(t, err)
	assert.False(t, res.Reallocated, "identical configuration must not reallocate")
	assert.Equal(t, uint64(1), b.Allocations())
	assert.Same(t, &first.Bytes[0], &b.Region().Bytes[0])

	res, err = b.Configure(48000, Stereo)
	require.NoError(t, err)
	assert.True(t, res.Reallocated)
	assert.Equal(t, 480, res.Frames)
	assert.Equal(t, 1920, res.Size)
	assert.Equal(t, uint64(2), b.Generation())
	assert.Equal(t, uint64(2), b.Allocations())
	assert.Equal(t, Stereo, b.Region().Channels)
	assert.Equal(t, uint32(48000), b.Region().SampleRate)
}

func TestSampleBufferSameSizeKeepsMemory(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(DirectionPlayout, 0, nil)
	_, err := b.Configure(16000, Stereo)
	require.NoError(t, err)

	res, err := b.Configure(32000, Mono)
	require.NoError(t, err)
	assert.False(t, res.Reallocated)
	assert.Equal(t, 640, res.Size)
	assert.Equal(t, 320, res.Frames, "frames follow the new rate even without reallocation")
	assert.Equal(t, uint64(1), b.Generation())
}

func TestSampleBufferRejectsInvalidConfiguration(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(DirectionRecording, 1000, nil)
	_, err := b.Configure(16000, Mono)
	require.NoError(t, err)
	before := b.Region()

	tests := []struct {
		name     string
		rate     uint32
		channels int
	}{
		{"zero channels", 16000, 0},
		{"three channels", 16000, 3},
		{"rate below one frame", 99, Mono},
		{"zero rate", 0, Mono},
		{"above max bytes", 48000, Stereo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := b.Configure(tt.rate, tt.channels)
			require.ErrorIs(t, err, ErrInvalidBufferConfig)
			assert.False(t, res.Reallocated)
			assert.Equal(t, before.Generation, b.Generation())
			assert.Equal(t, 320, b.Size())
			assert.Equal(t, 160, b.Frames())
		})
	}
}

func TestSampleBufferAllocationFailureKeepsPreviousBuffer(t *testing.T) {
	t.Parallel()

	calls := 0
	alloc := func(n int) ([]byte, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("out of memory")
		}
		return make([]byte, n), nil
	}

	b := NewSampleBuffer(DirectionPlayout, 0, alloc)
	_, err := b.Configure(16000, Mono)
	require.NoError(t, err)
	before := b.Region()

	res, err := b.Configure(48000, Stereo)
	require.ErrorIs(t, err, ErrBufferAllocation)
	assert.False(t, res.Reallocated)

	after := b.Region()
	assert.Same(t, &before.Bytes[0], &after.Bytes[0])
	assert.Equal(t, before.Generation, after.Generation)
	assert.Equal(t, uint32(16000), after.SampleRate)
	assert.Equal(t, uint64(1), b.Allocations())
}

func TestSampleBufferShortAllocation(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(DirectionRecording, 0, func(n int) ([]byte, error) {
		return make([]byte, n-1), nil
	})
	_, err := b.Configure(16000, Mono)
	require.ErrorIs(t, err, ErrBufferAllocation)
	assert.Zero(t, b.Size())
}

func TestSampleBufferWithAndRelease(t *testing.T) {
	t.Parallel()

	b := NewSampleBuffer(DirectionRecording, 0, nil)
	assert.False(t, b.With(func([]byte, int) { t.Fatal("called without memory") }))

	_, err := b.Configure(8000, Mono)
	require.NoError(t, err)

	var seenFrames, seenLen int
	assert.True(t, b.With(func(data []byte, frames int) {
		seenFrames, seenLen = frames, len(data)
	}))
	assert.Equal(t, 80, seenFrames)
	assert.Equal(t, 160, seenLen)

	b.Release()
	assert.Zero(t, b.Size())
	assert.False(t, b.Region().Valid())

	res, err := b.Configure(8000, Mono)
	require.NoError(t, err)
	assert.True(t, res.Reallocated)
	assert.Equal(t, uint64(2), res.Region.Generation)
}
