// Package main is the production entry point for the gomixer audio engine.
//
// gomixer mixes file playback and live microphone channels and is driven by
// a host over a websocket command bridge:
// - Request/response commands at /ws
// - Listener events pushed to every connected host
// - Prometheus metrics at /metrics
//
// Build:
//
//	go build -o build/gomixer ./cmd
//	go build -tags portaudio -o build/gomixer ./cmd
//
// Run:
//
//	./build/gomixer -listen 127.0.0.1:8765 -backend pcm
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tejashwikalptaru/gomixer/internal/app"
)

func main() {
	// Create default configuration; flags override it
	config := app.DefaultConfig()

	flag.StringVar(&config.ListenAddr, "listen", config.ListenAddr, "websocket bridge address")
	flag.StringVar(&config.MetricsAddr, "metrics", config.MetricsAddr, "separate metrics address (empty serves /metrics on -listen only)")
	flag.StringVar(&config.Backend, "backend", config.Backend, "audio backend: "+strings.Join(app.Backends(), ", "))
	flag.StringVar(&config.RecordDir, "record-dir", config.RecordDir, "write a WAV file per playback session to this directory")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.GetVersionInfo().FullString())
		return
	}

	// Create the application with dependency injection
	application, err := app.NewApplication(config)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Ensure a graceful shutdown
	defer func() {
		if err := application.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run application (blocks until a signal arrives)
	if err := application.Run(ctx); err != nil {
		log.Printf("Application error: %v", err)
	}
}
