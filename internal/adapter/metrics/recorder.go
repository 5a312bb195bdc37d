// Package metrics exports mixer activity to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

const namespace = "gomixer"

// ChannelCounter reports the number of registered channels.
type ChannelCounter interface {
	ChannelCounts() (files, mics int)
}

// Recorder owns the mixer's collectors.
type Recorder struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	meterLevel      *prometheus.GaugeVec

	mu      sync.Mutex
	bus     ports.EventBus
	subID   domain.SubscriptionID
	watched bool
}

// NewRecorder registers the mixer collectors, plus the Go and process
// collectors, on a private registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		commandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of bridge commands by command and status",
			},
			[]string{"command", "status"},
		),
		commandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent handling bridge commands",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"command"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of events published by type",
			},
			[]string{"type"},
		),
		meterLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channel_meter_level_millibels",
				Help:      "Most recent meter reading per channel",
			},
			[]string{"channel"},
		),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveCommand records one handled command.
func (r *Recorder) ObserveCommand(command, status string, elapsed time.Duration) {
	r.commandsTotal.WithLabelValues(command, status).Inc()
	r.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Attach counts every event published on bus until Detach.
func (r *Recorder) Attach(bus ports.EventBus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bus != nil {
		r.bus.Unsubscribe(r.subID)
	}
	r.bus = bus
	r.subID = bus.SubscribeAll(r.observeEvent)
}

// Detach stops counting events.
func (r *Recorder) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bus != nil {
		r.bus.Unsubscribe(r.subID)
		r.bus = nil
	}
}

func (r *Recorder) observeEvent(e domain.Event) {
	r.eventsTotal.WithLabelValues(string(e.Type())).Inc()

	switch ev := e.(type) {
	case domain.MeterLevelEvent:
		r.meterLevel.WithLabelValues(ev.ChannelID).Set(ev.Level)
	case domain.ChannelStateChangedEvent:
		if ev.To == domain.StateDestroyed {
			r.meterLevel.DeleteLabelValues(ev.ChannelID)
		}
	}
}

// WatchChannels exports the registered channel counts of src. Only the
// first call has an effect.
func (r *Recorder) WatchChannels(src ChannelCounter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watched {
		return
	}
	r.watched = true

	factory := promauto.With(r.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "channels",
		Help:        "Registered channels by input type",
		ConstLabels: prometheus.Labels{"input_type": string(domain.InputFile)},
	}, func() float64 {
		files, _ := src.ChannelCounts()
		return float64(files)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "channels",
		Help:        "Registered channels by input type",
		ConstLabels: prometheus.Labels{"input_type": string(domain.InputMic)},
	}, func() float64 {
		_, mics := src.ChannelCounts()
		return float64(mics)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
