package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xfrag/webrtc/internal/conf"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewEndpointRequiresTelemetry(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(&conf.Settings{}, m)
	assert.Error(t, err)
}

func TestEndpointServesMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.ADM.RecordUnsupportedCall("CPULoad")

	settings := &conf.Settings{}
	settings.Telemetry.Enabled = true
	settings.Telemetry.Listen = "127.0.0.1:0"
	endpoint, err := NewEndpoint(settings, m)
	require.NoError(t, err)
	assert.Same(t, m, endpoint.GetMetrics())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- endpoint.Serve(ctx, listener) }()

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `adm_unsupported_calls_total{operation="CPULoad"} 1`)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("endpoint did not shut down")
	}
}
