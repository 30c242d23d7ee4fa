package transport

import (
	"log/slog"
	"sync"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/logging"
)

// Engine connects a transport to a module's device buffer and holds a
// module reference until Close, so the module's creator cannot dispose it
// while audio is flowing.
type Engine struct {
	module    *adm.Module
	buffer    *DeviceBuffer
	transport AudioTransport
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewEngine takes a reference on m and registers t with buf.
func NewEngine(m *adm.Module, buf *DeviceBuffer, t AudioTransport) (*Engine, error) {
	if m == nil || m.AddRef() == 0 {
		return nil, ErrModuleDestroyed
	}
	logger := logging.ForService("transport")
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		module:    m,
		buffer:    buf,
		transport: t,
		logger:    logger.With("component", "engine", "module_id", m.ID()),
	}
	buf.RegisterAudioCallback(t)
	e.logger.Info("transport engine opened", "references", m.Refs())
	return e, nil
}

// Module returns the retained module.
func (e *Engine) Module() *adm.Module { return e.module }

// Transport returns the registered transport.
func (e *Engine) Transport() AudioTransport { return e.transport }

// Close unregisters the transport and releases the module reference. Only
// the first call has an effect.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.buffer.RegisterAudioCallback(nil)
		refs := e.module.Release()
		e.logger.Info("transport engine closed", "references", refs)
	})
}
