package file

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/tphakala/flac"

	"github.com/xfrag/webrtc/internal/errors"
)

// PCM is interleaved signed 16-bit audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Bytes encodes the samples as little-endian PCM.
func (p *PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// WithChannels returns the audio with channels channels. Mono is upmixed by
// duplication; extra channels are downmixed by averaging.
func (p *PCM) WithChannels(channels int) *PCM {
	if channels == p.Channels || channels <= 0 {
		return p
	}
	frames := p.Frames()
	out := &PCM{SampleRate: p.SampleRate, Channels: channels, Samples: make([]int16, frames*channels)}
	for f := range frames {
		src := p.Samples[f*p.Channels : (f+1)*p.Channels]
		var sum int
		for _, s := range src {
			sum += int(s)
		}
		mixed := int16(sum / len(src))
		for c := range channels {
			if c < len(src) && channels > 1 && p.Channels > 1 {
				out.Samples[f*channels+c] = src[c]
			} else {
				out.Samples[f*channels+c] = mixed
			}
		}
	}
	return out
}

// Decode reads a WAV, FLAC or MP3 file into 16-bit PCM.
func Decode(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	var pcm *PCM
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		pcm, err = decodeWAV(f)
	case ".flac":
		pcm, err = decodeFLAC(f)
	case ".mp3":
		pcm, err = decodeMP3(f)
	default:
		err = fmt.Errorf("unsupported audio file type %q", ext)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryAudio).
			FileContext(path, 0).
			Build()
	}
	if pcm.SampleRate <= 0 || pcm.Channels <= 0 {
		return nil, errors.Newf("invalid audio format: %d Hz, %d channels", pcm.SampleRate, pcm.Channels).
			Component("backend").
			Category(errors.CategoryValidation).
			FileContext(path, 0).
			Build()
	}
	return pcm, nil
}

func decodeWAV(r io.ReadSeeker) (*PCM, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("input is not a valid WAV audio file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading WAV samples: %w", err)
	}

	bitDepth := int(decoder.BitDepth)
	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		v, err := to16(s, bitDepth)
		if err != nil {
			return nil, err
		}
		samples[i] = v
	}

	return &PCM{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		Samples:    samples,
	}, nil
}

// to16 scales a decoded integer sample to 16 bits. 8-bit WAV is unsigned.
func to16(s, bitDepth int) (int16, error) {
	switch bitDepth {
	case 8:
		return int16((s - 128) << 8), nil
	case 16:
		return int16(s), nil
	case 24:
		return int16(s >> 8), nil
	case 32:
		return int16(s >> 16), nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
}

func decodeFLAC(r io.Reader) (*PCM, error) {
	decoder, err := flac.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("opening FLAC stream: %w", err)
	}

	bytesPerSample := decoder.BitsPerSample / 8
	if bytesPerSample < 1 || bytesPerSample > 4 {
		return nil, fmt.Errorf("unsupported bit depth %d", decoder.BitsPerSample)
	}

	var samples []int16
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding FLAC frame: %w", err)
		}

		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			var s int32
			switch bytesPerSample {
			case 1:
				s = int32(int8(frame[i])) << 8
			case 2:
				s = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 3:
				s = (int32(frame[i]) | int32(frame[i+1])<<8 | int32(int8(frame[i+2]))<<16) >> 8
			case 4:
				s = int32(binary.LittleEndian.Uint32(frame[i:])) >> 16
			}
			samples = append(samples, int16(s))
		}
	}

	return &PCM{
		SampleRate: decoder.SampleRate,
		Channels:   decoder.NChannels,
		Samples:    samples,
	}, nil
}

// decodeMP3 relies on go-mp3 always producing 16-bit stereo.
func decodeMP3(r io.Reader) (*PCM, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("opening MP3 stream: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return &PCM{
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		Samples:    samples,
	}, nil
}
