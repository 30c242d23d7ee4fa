// Package buildinfo carries build-time metadata injected through ldflags,
// kept apart from the user configuration.
package buildinfo

import (
	"runtime/debug"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Context holds the build metadata and the identity of this process.
type Context struct {
	version   string
	buildDate string
	// instanceID tags error reports from one process run.
	instanceID string
}

// NewContext returns a context for the injected values. An empty version
// falls back to the main module version recorded by the Go toolchain.
func NewContext(version, buildDate string) *Context {
	if version == "" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			version = bi.Main.Version
		}
	}
	return &Context{
		version:    version,
		buildDate:  buildDate,
		instanceID: uuid.NewString(),
	}
}

// Version returns the build version.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build date.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// InstanceID returns the random identifier of this process run.
func (c *Context) InstanceID() string {
	if c == nil {
		return UnknownValue
	}
	return c.instanceID
}
