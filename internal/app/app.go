// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/pcm"
	"github.com/tejashwikalptaru/gomixer/internal/adapter/bridge"
	"github.com/tejashwikalptaru/gomixer/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gomixer/internal/adapter/metrics"
	"github.com/tejashwikalptaru/gomixer/internal/logger"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
	"github.com/tejashwikalptaru/gomixer/internal/service"
)

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
type Application struct {
	// Core dependencies
	logger *slog.Logger
	config Config

	// Infrastructure
	eventBus ports.EventBus
	platform ports.AudioPlatform
	recorder *metrics.Recorder

	// Services
	session *service.MixerSession

	// Transport
	dispatcher *bridge.Dispatcher
	server     *bridge.Server

	mu       sync.Mutex
	shutdown bool
}

// Config holds application configuration.
type Config struct {
	// ListenAddr serves the websocket command bridge at /ws.
	ListenAddr string

	// MetricsAddr serves Prometheus metrics at /metrics. Empty disables it.
	MetricsAddr string

	// Backend selects the audio platform: "mock", "pcm" or, when built
	// with -tags portaudio, "portaudio".
	Backend string

	// RecordDir, when set, receives a WAV file per playback session.
	RecordDir string

	// SampleRate and FramesPerBuffer are the session stream defaults.
	SampleRate      int
	FramesPerBuffer int

	// LogLevel controls logging verbosity
	LogLevel  slog.Level
	LogFormat string
}

// DefaultConfig returns the default application configuration.
// GOMIXER_LISTEN, GOMIXER_METRICS, GOMIXER_BACKEND and GOMIXER_RECORD_DIR
// override the matching fields.
func DefaultConfig() Config {
	loggerCfg := logger.DefaultConfig()
	session := service.DefaultSessionConfig()
	cfg := Config{
		ListenAddr:      "127.0.0.1:8765",
		MetricsAddr:     "",
		Backend:         "pcm",
		SampleRate:      session.SampleRate,
		FramesPerBuffer: session.FramesPerBuffer,
		LogLevel:        loggerCfg.Level,
		LogFormat:       loggerCfg.Format,
	}

	if v := os.Getenv("GOMIXER_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("GOMIXER_METRICS"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("GOMIXER_BACKEND"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	cfg.RecordDir = os.Getenv("GOMIXER_RECORD_DIR")
	return cfg
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(config Config) (*Application, error) {
	app := &Application{config: config}

	// Step 1: Create logger
	app.logger = logger.NewLogger(logger.Config{
		Level:  config.LogLevel,
		Format: config.LogFormat,
	})
	app.logger.Info("initializing application",
		slog.String("version", GetVersionInfo().FullString()),
		slog.String("backend", config.Backend))

	// Step 2: Create an event bus
	app.eventBus = eventbus.NewSyncEventBus(app.logger.With(slog.String("component", "eventbus")))

	// Step 3: Create the audio platform
	platform, err := newPlatform(app.logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio platform: %w", err)
	}
	app.platform = platform

	// Step 4: Create the mixer session
	app.session = service.NewMixerSession(
		app.logger.With(slog.String("service", "mixer")),
		app.platform,
		app.eventBus,
		service.SessionConfig{SampleRate: config.SampleRate, FramesPerBuffer: config.FramesPerBuffer},
	)

	// Step 5: Metrics
	app.recorder = metrics.NewRecorder()
	app.recorder.Attach(app.eventBus)
	app.recorder.WatchChannels(app.session)

	// Step 6: Command bridge
	app.dispatcher = bridge.NewDispatcher(app.logger, app.session, app.recorder)
	app.server = bridge.NewServer(app.logger, app.dispatcher, app.eventBus)

	return app, nil
}

// newPlatform builds the configured backend.
func newPlatform(log *slog.Logger, config Config) (ports.AudioPlatform, error) {
	factory, ok := backends[config.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %s)", config.Backend, strings.Join(Backends(), ", "))
	}

	var sink pcm.Sink
	if config.RecordDir != "" {
		s, err := pcm.NewWavDirSink(config.RecordDir)
		if err != nil {
			return nil, err
		}
		sink = s
	}
	return factory(log.With(slog.String("engine", config.Backend)), sink)
}

// Dispatcher returns the command dispatcher.
func (a *Application) Dispatcher() *bridge.Dispatcher { return a.dispatcher }

// Session returns the mixer session.
func (a *Application) Session() *service.MixerSession { return a.session }

// EventBus returns the event bus.
func (a *Application) EventBus() ports.EventBus { return a.eventBus }

// Handler returns the HTTP routes: the bridge at /ws, metrics at /metrics
// and a liveness check at /healthz.
func (a *Application) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.server)
	mux.Handle("/metrics", a.recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves until ctx is canceled or a listener fails.
func (a *Application) Run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              a.config.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if a.config.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              a.config.MetricsAddr,
			Handler:           a.recorder.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			a.closeServers(servers)
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		a.logger.Info("listening", slog.String("addr", ln.Addr().String()))
		go func(srv *http.Server) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	a.logger.Info("gomixer started", slog.String("listen", a.config.ListenAddr))

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		a.logger.Error("server failed", slog.Any("error", err))
	}
	a.closeServers(servers)
	return err
}

func (a *Application) closeServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown failed", slog.String("addr", srv.Addr), slog.Any("error", err))
		}
	}
}

// Shutdown gracefully shuts down the application. Calling it twice is a no-op.
func (a *Application) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	a.logger.Info("shutting down application")

	// Shutdown in reverse order of creation
	var errs []error
	if err := a.server.Close(); err != nil {
		errs = append(errs, err)
	}
	a.recorder.Detach()
	if err := a.session.Close(); err != nil {
		a.logger.Warn("failed to close mixer session", slog.Any("error", err))
		errs = append(errs, err)
	}
	if err := a.platform.Close(); err != nil {
		a.logger.Warn("failed to close audio platform", slog.Any("error", err))
		errs = append(errs, err)
	}
	if err := a.eventBus.Close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
