package malgo

import (
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/xfrag/webrtc/internal/errors"
)

// platformBackend returns the native miniaudio backend for this OS.
func platformBackend() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("backend").
			Category(errors.CategoryNotSupported).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := platformBackend()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("os", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

// usableDevices counts devices other than miniaudio's null device.
func usableDevices(names []string) int {
	n := 0
	for _, name := range names {
		if !strings.Contains(name, "Discard all samples") {
			n++
		}
	}
	return n
}
