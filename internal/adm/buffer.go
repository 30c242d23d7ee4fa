package adm

import (
	"sync"

	"github.com/xfrag/webrtc/internal/errors"
)

// ConfigureResult describes the outcome of SampleBuffer.Configure.
type ConfigureResult struct {
	Frames      int
	Size        int
	Reallocated bool
	Region      Region
}

// SampleBuffer owns the PCM memory for one direction. The memory is sized for
// exactly one quantum and is replaced only when the required size changes.
type SampleBuffer struct {
	mu          sync.Mutex
	direction   Direction
	maxBytes    int
	alloc       Allocator
	data        []byte
	sampleRate  uint32
	channels    int
	frames      int
	generation  uint64
	allocations uint64
}

// NewSampleBuffer returns an empty buffer. Memory is allocated by the first
// successful Configure.
func NewSampleBuffer(direction Direction, maxBytes int, alloc Allocator) *SampleBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBufferBytes
	}
	if alloc == nil {
		alloc = defaultAllocator
	}
	return &SampleBuffer{direction: direction, maxBytes: maxBytes, alloc: alloc}
}

// Configure recomputes the quantum size for sampleRate and channels. The
// memory is reallocated only when the byte size differs from the current
// one. On failure the previous memory and configuration stay in effect.
func (b *SampleBuffer) Configure(sampleRate uint32, channels int) (ConfigureResult, error) {
	frames, size := QuantumSize(sampleRate, channels)

	b.mu.Lock()
	defer b.mu.Unlock()

	if channels != Mono && channels != Stereo {
		return b.result(false), b.configError(sampleRate, channels, "unsupported channel count")
	}
	if size == 0 {
		return b.result(false), b.configError(sampleRate, channels, "sample rate yields an empty quantum")
	}
	if size > b.maxBytes {
		return b.result(false), errors.New(ErrInvalidBufferConfig).
			Component("adm").
			Category(errors.CategoryLimit).
			AudioContext(sampleRate, channels).
			Context("direction", b.direction.String()).
			Context("size", size).
			Context("max_bytes", b.maxBytes).
			Build()
	}

	if size == len(b.data) {
		b.sampleRate, b.channels, b.frames = sampleRate, channels, frames
		return b.result(false), nil
	}

	data, err := b.alloc(size)
	if err == nil && len(data) != size {
		err = errors.Newf("allocator returned %d bytes, want %d", len(data), size).Build()
	}
	if err != nil {
		return b.result(false), errors.Join(ErrBufferAllocation, errors.New(err).
			Component("adm").
			Category(errors.CategoryBuffer).
			AudioContext(sampleRate, channels).
			Context("direction", b.direction.String()).
			Context("size", size).
			Build())
	}

	b.data = data
	b.sampleRate, b.channels, b.frames = sampleRate, channels, frames
	b.generation++
	b.allocations++
	return b.result(true), nil
}

func (b *SampleBuffer) configError(sampleRate uint32, channels int, reason string) error {
	return errors.New(ErrInvalidBufferConfig).
		Component("adm").
		Category(errors.CategoryValidation).
		AudioContext(sampleRate, channels).
		Context("direction", b.direction.String()).
		Context("reason", reason).
		Build()
}

// result must be called with b.mu held.
func (b *SampleBuffer) result(reallocated bool) ConfigureResult {
	return ConfigureResult{
		Frames:      b.frames,
		Size:        len(b.data),
		Reallocated: reallocated,
		Region:      b.regionLocked(),
	}
}

func (b *SampleBuffer) regionLocked() Region {
	return Region{
		Bytes:      b.data,
		Frames:     b.frames,
		Channels:   b.channels,
		SampleRate: b.sampleRate,
		Generation: b.generation,
	}
}

// Region returns the current region.
func (b *SampleBuffer) Region() Region {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regionLocked()
}

// Frames returns the frames per quantum of the current configuration.
func (b *SampleBuffer) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Size returns the byte size of the current memory.
func (b *SampleBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Generation increments with every reallocation.
func (b *SampleBuffer) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Allocations returns how many times memory was allocated.
func (b *SampleBuffer) Allocations() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocations
}

// With runs fn with exclusive access to the memory. fn must not retain data.
// It returns false without calling fn when no memory is allocated.
func (b *SampleBuffer) With(fn func(data []byte, frames int)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return false
	}
	fn(b.data, b.frames)
	return true
}

// Release drops the memory. The generation is kept so a later Configure
// still produces a fresh generation.
func (b *SampleBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	b.frames = 0
	b.sampleRate = 0
	b.channels = 0
}
