// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// Sample rate bounds accepted for either direction.
const (
	MinSampleRate = 8000
	MaxSampleRate = 384000
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateLogSettings(&settings.Main.Log)...)
	ve.Errors = append(ve.Errors, validateADMSettings(&settings.ADM)...)
	ve.Errors = append(ve.Errors, validateDeviceSettings(&settings.Device)...)
	ve.Errors = append(ve.Errors, validateTransportSettings(&settings.Transport, &settings.Device)...)
	ve.Errors = append(ve.Errors, validateTelemetrySettings(&settings.Telemetry)...)

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLogSettings(settings *LogConfig) []string {
	var errs []string
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "warning", "error"}, strings.ToLower(settings.Level)) {
		errs = append(errs, fmt.Sprintf("main.log.level %q is not a known level", settings.Level))
	}
	if settings.Enabled && settings.Path == "" {
		errs = append(errs, "main.log.path must be set when file logging is enabled")
	}
	return errs
}

func validateADMSettings(settings *ADMSettings) []string {
	var errs []string
	if settings.UnderrunPolicy != UnderrunPreserve && settings.UnderrunPolicy != UnderrunSilence {
		errs = append(errs, fmt.Sprintf("adm.underrunpolicy must be %q or %q, got %q",
			UnderrunPreserve, UnderrunSilence, settings.UnderrunPolicy))
	}
	// One 10 ms stereo quantum at the highest accepted rate must fit.
	if minBytes := MaxSampleRate / 100 * 2 * 2; settings.MaxBufferBytes < minBytes {
		errs = append(errs, fmt.Sprintf("adm.maxbufferbytes must be at least %d", minBytes))
	}
	return errs
}

func validateDeviceSettings(settings *DeviceSettings) []string {
	var errs []string

	switch settings.Backend {
	case BackendFile:
		if settings.Recording.Enabled && settings.File.Input == "" {
			errs = append(errs, "device.file.input must be set when recording is enabled")
		}
		if settings.Playout.Enabled && settings.File.Output == "" {
			errs = append(errs, "device.file.output must be set when playout is enabled")
		}
	case BackendMalgo, BackendPortAudio:
	default:
		errs = append(errs, fmt.Sprintf("device.backend %q is not supported", settings.Backend))
	}

	if !settings.Recording.Enabled && !settings.Playout.Enabled {
		errs = append(errs, "at least one of device.recording and device.playout must be enabled")
	}

	for name, dir := range map[string]DirectionSettings{"recording": settings.Recording, "playout": settings.Playout} {
		if !dir.Enabled {
			continue
		}
		if dir.SampleRate < MinSampleRate || dir.SampleRate > MaxSampleRate {
			errs = append(errs, fmt.Sprintf("device.%s.samplerate must be between %d and %d", name, MinSampleRate, MaxSampleRate))
		}
		if dir.DelayMS < 0 || dir.DelayMS > 0xFFFF {
			errs = append(errs, fmt.Sprintf("device.%s.delayms must be between 0 and 65535", name))
		}
	}

	slices.Sort(errs)
	return errs
}

func validateTransportSettings(settings *TransportSettings, device *DeviceSettings) []string {
	var errs []string
	if settings.Mode != TransportLoopback {
		errs = append(errs, fmt.Sprintf("transport.mode %q is not supported", settings.Mode))
	}
	if settings.BufferMS < 10 || settings.BufferMS > 10000 {
		errs = append(errs, "transport.bufferms must be between 10 and 10000")
	}
	if settings.Mode == TransportLoopback && device.Recording.Enabled && device.Playout.Enabled &&
		device.Recording.SampleRate != device.Playout.SampleRate {
		errs = append(errs, "loopback transport requires equal recording and playout sample rates")
	}
	return errs
}

func validateTelemetrySettings(settings *TelemetrySettings) []string {
	var errs []string
	if settings.Enabled {
		if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("telemetry.listen %q is not a host:port address", settings.Listen))
		}
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		errs = append(errs, "telemetry.sentry.dsn must be set when sentry is enabled")
	}
	return errs
}
