package adm

import (
	"fmt"
	"log/slog"

	"github.com/xfrag/webrtc/internal/conf"
)

// DefaultMaxBufferBytes bounds a single quantum allocation when no limit is
// configured. 384 kHz stereo needs 15360 bytes, so this leaves ample room.
const DefaultMaxBufferBytes = 1 << 20

// UnderrunPolicy decides what the playout region holds after the sink failed
// to produce a full quantum.
type UnderrunPolicy int

const (
	// UnderrunPreserve leaves the previous quantum in place.
	UnderrunPreserve UnderrunPolicy = iota
	// UnderrunSilence zero-fills the region.
	UnderrunSilence
)

func (p UnderrunPolicy) String() string {
	if p == UnderrunSilence {
		return conf.UnderrunSilence
	}
	return conf.UnderrunPreserve
}

// ParseUnderrunPolicy maps the configuration value to a policy. An empty
// value selects UnderrunPreserve.
func ParseUnderrunPolicy(name string) (UnderrunPolicy, error) {
	switch name {
	case "", conf.UnderrunPreserve:
		return UnderrunPreserve, nil
	case conf.UnderrunSilence:
		return UnderrunSilence, nil
	default:
		return UnderrunPreserve, fmt.Errorf("unknown underrun policy %q", name)
	}
}

// Allocator returns a zeroed byte slice of exactly n bytes.
type Allocator func(n int) ([]byte, error)

func defaultAllocator(n int) ([]byte, error) {
	return make([]byte, n), nil
}

// Options configure a Device.
type Options struct {
	// Logger defaults to the "adm" service logger.
	Logger *slog.Logger
	// ID identifies the module in logs and metrics. A random UUID is used
	// when empty.
	ID string
	// RelaxedChecks logs affinity and invariant violations instead of
	// panicking.
	RelaxedChecks bool
	UnderrunPolicy UnderrunPolicy
	// MaxBufferBytes bounds one quantum allocation. Zero selects
	// DefaultMaxBufferBytes.
	MaxBufferBytes int
	// Allocator defaults to make.
	Allocator Allocator
}

// OptionsFromSettings builds Options from the adm configuration section.
func OptionsFromSettings(settings *conf.Settings) (Options, error) {
	policy, err := ParseUnderrunPolicy(settings.ADM.UnderrunPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		RelaxedChecks:  !settings.ADM.StrictThreadChecks,
		UnderrunPolicy: policy,
		MaxBufferBytes: settings.ADM.MaxBufferBytes,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.MaxBufferBytes <= 0 {
		o.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if o.Allocator == nil {
		o.Allocator = defaultAllocator
	}
	return o
}
