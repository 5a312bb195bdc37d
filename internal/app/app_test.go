package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/bridge"
	"github.com/tejashwikalptaru/gomixer/internal/testutil"
)

func testConfig(backend string) Config {
	config := DefaultConfig()
	config.Backend = backend
	config.ListenAddr = "127.0.0.1:0"
	return config
}

func TestNewApplication(t *testing.T) {
	app, err := NewApplication(testConfig("mock"))
	require.NoError(t, err)
	require.NotNil(t, app)

	assert.NotNil(t, app.Session())
	assert.NotNil(t, app.EventBus())
	assert.NotNil(t, app.Dispatcher())

	require.NoError(t, app.Shutdown())
}

func TestNewApplication_UnknownBackend(t *testing.T) {
	_, err := NewApplication(testConfig("alsa"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alsa")
	assert.Contains(t, err.Error(), "pcm")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "127.0.0.1:8765", config.ListenAddr)
	assert.Equal(t, "pcm", config.Backend)
	assert.Equal(t, 48000, config.SampleRate)
	assert.Empty(t, config.MetricsAddr)
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("GOMIXER_LISTEN", ":9000")
	t.Setenv("GOMIXER_METRICS", ":9100")
	t.Setenv("GOMIXER_BACKEND", "MOCK")
	t.Setenv("GOMIXER_RECORD_DIR", "/tmp/rec")

	config := DefaultConfig()
	assert.Equal(t, ":9000", config.ListenAddr)
	assert.Equal(t, ":9100", config.MetricsAddr)
	assert.Equal(t, "mock", config.Backend)
	assert.Equal(t, "/tmp/rec", config.RecordDir)
}

func TestBackends(t *testing.T) {
	assert.Subset(t, Backends(), []string{"mock", "pcm"})
}

func TestApplicationLifecycle(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	config := testConfig("pcm")
	config.RecordDir = t.TempDir()
	app, err := NewApplication(config)
	require.NoError(t, err)

	ctx := context.Background()
	resp := app.Dispatcher().Handle(ctx, bridge.Request{Command: "initAudioSession", Args: bridge.Args{}})
	require.True(t, resp.OK(), resp.Message)
	assert.Equal(t, "Built-in Microphone", resp.Data["preferredInputPortName"])

	resp = app.Dispatcher().Handle(ctx, bridge.Request{Command: "getInputChannelCount"})
	require.True(t, resp.OK(), resp.Message)
	assert.Equal(t, 2, resp.Data["channelCount"])

	require.NoError(t, app.Shutdown())
	// Shutdown again should not fail
	assert.NoError(t, app.Shutdown())
}

func TestApplication_Handler(t *testing.T) {
	app, err := NewApplication(testConfig("mock"))
	require.NoError(t, err)
	defer func() { _ = app.Shutdown() }()

	app.Dispatcher().Handle(context.Background(), bridge.Request{Command: "requestMixerPermissions"})

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `gomixer_commands_total{command="requestMixerPermissions",status="success"} 1`)
	assert.Contains(t, string(body), "gomixer_channels")
}

func TestApplication_RunStopsOnCancel(t *testing.T) {
	app, err := NewApplication(testConfig("mock"))
	require.NoError(t, err)
	defer func() { _ = app.Shutdown() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
