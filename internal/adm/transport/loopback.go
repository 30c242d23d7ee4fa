package transport

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/logging"
)

// LoopbackName labels the loopback transport in metrics.
const LoopbackName = "loopback"

// Loopback plays recorded audio back out after up to BufferMS of buffering.
// When the ring is full the oldest audio is dropped. Playout requests are
// served only in whole requests; anything less is left buffered and reported
// as zero frames.
type Loopback struct {
	bufferMS int
	logger   *slog.Logger

	mu       sync.Mutex
	ring     *ringbuffer.RingBuffer
	rate     uint32
	channels int
	scratch  []byte

	dropped    atomic.Int64
	mismatches atomic.Int64

	dropLog     rate.Sometimes
	mismatchLog rate.Sometimes
}

var _ AudioTransport = (*Loopback)(nil)

// NewLoopback returns a loopback buffering up to bufferMS milliseconds.
func NewLoopback(bufferMS int, logger *slog.Logger) *Loopback {
	if bufferMS < adm.CallbackBufferSizeMS {
		bufferMS = adm.CallbackBufferSizeMS
	}
	if logger == nil {
		logger = logging.ForService("transport")
		if logger == nil {
			logger = slog.Default()
		}
	}
	return &Loopback{
		bufferMS:    bufferMS,
		logger:      logger.With("component", "loopback"),
		dropLog:     rate.Sometimes{Interval: time.Second},
		mismatchLog: rate.Sometimes{Interval: time.Second},
	}
}

// RecordedDataIsAvailable buffers the quantum. A format change discards what
// was buffered in the old format.
func (l *Loopback) RecordedDataIsAvailable(f Frame) error {
	if err := validChannels(f.Channels); err != nil {
		return err
	}
	size := f.Frames * f.Channels * adm.BytesPerSample
	if f.Frames <= 0 || len(f.Data) < size {
		return ErrInvalidFormat
	}
	data := f.Data[:size]

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ring == nil || f.SampleRate != l.rate || f.Channels != l.channels {
		l.reset(f.SampleRate, f.Channels)
	}

	capacity := l.ring.Capacity()
	if len(data) > capacity {
		l.drop("oversized", len(data)-capacity)
		data = data[len(data)-capacity:]
	}
	// Capacity and every write are whole frames, so excess is too.
	if excess := len(data) - l.ring.Free(); excess > 0 {
		n, _ := l.ring.Read(l.discard(excess))
		l.drop("overrun", n)
	}

	if _, err := l.ring.Write(data); err != nil {
		l.drop("write_error", len(data))
		return err
	}
	return nil
}

func (l *Loopback) reset(sampleRate uint32, channels int) {
	if l.ring != nil && l.ring.Length() > 0 {
		l.drop("format_change", l.ring.Length())
	}
	l.ring = ringbuffer.New(ringFrames(sampleRate, l.bufferMS) * channels * adm.BytesPerSample)
	l.rate = sampleRate
	l.channels = channels
	l.logger.Debug("loopback buffer sized",
		"sample_rate", sampleRate,
		"channels", channels,
		"bytes", l.ring.Capacity())
}

// ringFrames returns the frames covering bufferMS at sampleRate, rounded up
// and never less than one quantum.
func ringFrames(sampleRate uint32, bufferMS int) int {
	frames := (int(sampleRate)*bufferMS + 999) / 1000
	return max(frames, adm.FramesPerBuffer(sampleRate), 1)
}

func (l *Loopback) discard(n int) []byte {
	if cap(l.scratch) < n {
		l.scratch = make([]byte, n)
	}
	return l.scratch[:n]
}

func (l *Loopback) drop(reason string, bytes int) {
	if bytes <= 0 {
		return
	}
	l.dropped.Add(int64(bytes))
	adm.GetMetrics().RecordTransportDropped(LoopbackName, reason, bytes)
	l.dropLog.Do(func() {
		l.logger.Warn("loopback dropped audio", "reason", reason, "bytes", bytes)
	})
}

// NeedMorePlayData serves frames from the ring, converting between mono and
// stereo. It returns 0 while less than frames frames are buffered or when
// the requested rate differs from the recorded one.
func (l *Loopback) NeedMorePlayData(frames, bytesPerFrame, channels int, sampleRate uint32, dst []byte) (int, error) {
	if err := validChannels(channels); err != nil {
		return 0, err
	}
	if bytesPerFrame != channels*adm.BytesPerSample || len(dst) < frames*bytesPerFrame {
		return 0, ErrInvalidFormat
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ring == nil {
		return 0, nil
	}
	if sampleRate != l.rate {
		l.mismatches.Add(1)
		l.mismatchLog.Do(func() {
			l.logger.Warn("loopback sample rate mismatch",
				"recording_rate", l.rate,
				"playout_rate", sampleRate)
		})
		return 0, nil
	}

	need := frames * l.channels * adm.BytesPerSample
	if l.ring.Length() < need {
		return 0, nil
	}
	src := l.discard(need)
	if _, err := l.ring.Read(src); err != nil {
		return 0, err
	}

	convertChannels(dst, src, frames, l.channels, channels)
	return frames, nil
}

// convertChannels copies frames of 16-bit audio from src to dst, duplicating
// mono into both channels or averaging stereo down to mono.
func convertChannels(dst, src []byte, frames, srcChannels, dstChannels int) {
	switch {
	case srcChannels == dstChannels:
		copy(dst, src[:frames*srcChannels*adm.BytesPerSample])
	case srcChannels == adm.Mono:
		for i := range frames {
			s := src[2*i : 2*i+2]
			copy(dst[4*i:], s)
			copy(dst[4*i+2:], s)
		}
	default:
		for i := range frames {
			l := int32(int16(binary.LittleEndian.Uint16(src[4*i:])))
			r := int32(int16(binary.LittleEndian.Uint16(src[4*i+2:])))
			binary.LittleEndian.PutUint16(dst[2*i:], uint16(int16((l+r)/2)))
		}
	}
}

// Buffered returns the number of bytes waiting for playout.
func (l *Loopback) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ring == nil {
		return 0
	}
	return l.ring.Length()
}

// Dropped returns the total number of bytes dropped.
func (l *Loopback) Dropped() int64 { return l.dropped.Load() }

// RateMismatches returns how many playout requests were refused for a rate
// mismatch.
func (l *Loopback) RateMismatches() int64 { return l.mismatches.Load() }
