// Package bridge exposes the mixer to a host over a request/response command
// surface and pushes listener events back.
//
// Every request resolves to exactly one Response; failures never escape as
// panics or transport errors.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one command from the host.
type Request struct {
	// ID correlates the response; one is generated when empty.
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
	Args    Args   `json:"args,omitempty"`
}

// Response is the envelope every command resolves to.
type Response struct {
	ID      string         `json:"id,omitempty"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// OK reports whether the command succeeded.
func (r Response) OK() bool { return r.Status == StatusSuccess }

// CommandObserver is notified after every command, e.g. for metrics.
type CommandObserver interface {
	ObserveCommand(command, status string, elapsed time.Duration)
}

// result is what a command handler produces on success.
type result struct {
	message string
	data    map[string]any
}

type handlerFunc func(ctx context.Context, args Args) (result, error)

// Dispatcher routes commands to the mixer.
type Dispatcher struct {
	// Dependencies (injected)
	logger   *slog.Logger
	mixer    ports.Mixer
	observer CommandObserver

	handlers map[string]handlerFunc
}

// NewDispatcher creates a dispatcher. observer may be nil.
func NewDispatcher(logger *slog.Logger, mixer ports.Mixer, observer CommandObserver) *Dispatcher {
	d := &Dispatcher{
		logger:   logger.With(slog.String("component", "dispatcher")),
		mixer:    mixer,
		observer: observer,
	}
	d.handlers = map[string]handlerFunc{
		"initAudioSession":                      d.initAudioSession,
		"deinitAudioSession":                    d.deinitAudioSession,
		"resetPlugin":                           d.resetPlugin,
		"requestMixerPermissions":               d.requestMixerPermissions,
		"getAudioSessionPreferredInputPortType": d.preferredInputPortType,
		"getInputChannelCount":                  d.inputChannelCount,
		"initAudioFile":                         d.initAudioFile,
		"initMicInput":                          d.initMicInput,
		"destroyAudioFile":                      d.destroyAudioFile,
		"destroyMicInput":                       d.destroyMicInput,
		"play":                                  d.play,
		"stop":                                  d.stop,
		"isPlaying":                             d.isPlaying,
		"adjustVolume":                          d.adjustVolume,
		"getCurrentVolume":                      d.currentVolume,
		"adjustEq":                              d.adjustEq,
		"getCurrentEq":                          d.currentEq,
		"setElapsedTimeEvent":                   d.setElapsedTimeEvent,
		"getElapsedTime":                        d.elapsedTime,
		"getTotalTime":                          d.totalTime,
	}
	return d
}

// Commands returns the supported command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle runs one command. It always returns a response.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked",
				slog.String("command", req.Command),
				slog.String("request_id", req.ID),
				slog.Any("panic", r))
			resp = errorResponse(req.ID, fmt.Errorf("internal error in %s: %v", req.Command, r))
		}
		if d.observer != nil {
			d.observer.ObserveCommand(req.Command, resp.Status, time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		return errorResponse(req.ID, err)
	}

	h, ok := d.handlers[req.Command]
	if !ok {
		return errorResponse(req.ID, fmt.Errorf("unknown command %q", req.Command))
	}
	if req.Args == nil {
		req.Args = Args{}
	}

	res, err := h(ctx, req.Args)
	if err != nil {
		d.logger.Debug("command failed",
			slog.String("command", req.Command),
			slog.String("request_id", req.ID),
			slog.Any("error", err))
		return errorResponse(req.ID, err)
	}
	return Response{ID: req.ID, Status: StatusSuccess, Message: res.message, Data: res.data}
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, Status: StatusError, Message: err.Error()}
}

func (d *Dispatcher) initAudioSession(_ context.Context, args Args) (result, error) {
	ioBuffer, err := args.Float("ioBufferDuration", -1)
	if err != nil {
		return result{}, err
	}
	portType := domain.ParsePortType(args.String("inputPortType", ""))

	info, err := d.mixer.InitAudioSession(portType, ioBuffer, args.String("audioSessionListenerName", ""))
	if err != nil {
		return result{}, err
	}
	return result{
		message: "successfully initialized audio session",
		data: map[string]any{
			"preferredInputPortName":    info.PreferredInputPortName,
			"preferredInputPortType":    string(info.PreferredInputPortType),
			"preferredIOBufferDuration": info.PreferredIOBufferDuration,
		},
	}, nil
}

func (d *Dispatcher) deinitAudioSession(context.Context, Args) (result, error) {
	if err := d.mixer.DeinitAudioSession(); err != nil {
		return result{}, err
	}
	return result{message: "Successfully deinitialized audio session"}, nil
}

func (d *Dispatcher) resetPlugin(context.Context, Args) (result, error) {
	if err := d.mixer.ResetPlugin(); err != nil {
		return result{}, err
	}
	return result{message: "Successfully restarted plugin to original state."}, nil
}

// Device permissions belong to the host OS; there is nothing to prompt for here.
func (d *Dispatcher) requestMixerPermissions(context.Context, Args) (result, error) {
	return result{message: "All required permissions granted."}, nil
}

func (d *Dispatcher) preferredInputPortType(context.Context, Args) (result, error) {
	portType, err := d.mixer.PreferredInputPortType()
	if err != nil {
		return result{}, err
	}
	return result{
		message: "Successfully got preferred input",
		data:    map[string]any{"value": string(portType)},
	}, nil
}

func (d *Dispatcher) inputChannelCount(context.Context, Args) (result, error) {
	count, name, err := d.mixer.InputChannelCount()
	if err != nil {
		return result{}, err
	}
	return result{
		message: "got input channel count and device name",
		data:    map[string]any{"channelCount": count, "deviceName": name},
	}, nil
}

func (d *Dispatcher) initAudioFile(_ context.Context, args Args) (result, error) {
	id, err := args.RequireString("audioId")
	if err != nil {
		return result{}, err
	}
	path, err := args.RequireString("filePath")
	if err != nil {
		return result{}, err
	}
	settings, err := args.ChannelSettings()
	if err != nil {
		return result{}, err
	}
	if err := d.mixer.InitAudioFile(id, path, settings); err != nil {
		return result{}, err
	}
	return result{message: "audio file was successfully initialized"}, nil
}

func (d *Dispatcher) initMicInput(_ context.Context, args Args) (result, error) {
	id, err := args.RequireString("audioId")
	if err != nil {
		return result{}, err
	}
	if !args.Has("channelNumber") {
		return result{}, domain.MissingFieldError("channelNumber")
	}
	channel, err := args.Int("channelNumber", -1)
	if err != nil {
		return result{}, err
	}
	settings, err := args.ChannelSettings()
	if err != nil {
		return result{}, err
	}
	settings.ChannelNumber = channel
	if err := d.mixer.InitMicInput(id, channel, settings); err != nil {
		return result{}, err
	}
	return result{message: "mic was successfully initialized"}, nil
}

func receiptData(r domain.DestroyReceipt) map[string]any {
	return map[string]any{
		"listenerName":         r.ListenerName,
		"elapsedTimeEventName": r.ElapsedTimeEventName,
	}
}

func (d *Dispatcher) destroyAudioFile(_ context.Context, args Args) (result, error) {
	id, err := args.RequireString("audioId")
	if err != nil {
		return result{}, err
	}
	receipt, err := d.mixer.DestroyAudioFile(id)
	if err != nil {
		return result{}, err
	}
	return result{message: "audioFile destroyed", data: receiptData(receipt)}, nil
}

func (d *Dispatcher) destroyMicInput(_ context.Context, args Args) (result, error) {
	id, err := args.RequireString("audioId")
	if err != nil {
		return result{}, err
	}
	receipt, err := d.mixer.DestroyMicInput(id)
	if err != nil {
		return result{}, err
	}
	return result{message: "mic input destroyed", data: receiptData(receipt)}, nil
}

// channelArgs reads audioId and inputType, the address of every per-channel command.
func channelArgs(args Args) (string, domain.InputType, error) {
	id, err := args.RequireString("audioId")
	if err != nil {
		return "", "", err
	}
	kind, err := args.InputType()
	if err != nil {
		return "", "", err
	}
	return id, kind, nil
}

func (d *Dispatcher) play(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	state, err := d.mixer.Play(id, kind)
	if err != nil {
		return result{}, err
	}
	return result{message: "playing or pausing playback", data: map[string]any{"state": string(state)}}, nil
}

func (d *Dispatcher) stop(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	state, err := d.mixer.Stop(id, kind)
	if err != nil {
		return result{}, err
	}
	return result{message: "stopping playback", data: map[string]any{"state": string(state)}}, nil
}

func (d *Dispatcher) isPlaying(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	playing, err := d.mixer.IsPlaying(id, kind)
	if err != nil {
		return result{}, err
	}
	return result{message: "got playing state", data: map[string]any{"value": playing}}, nil
}

func (d *Dispatcher) adjustVolume(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	volume, err := args.RequireFloat("volume")
	if err != nil {
		return result{}, err
	}
	if err := d.mixer.AdjustVolume(id, kind, volume); err != nil {
		return result{}, err
	}
	return result{message: "You are adjusting the volume"}, nil
}

func (d *Dispatcher) currentVolume(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	volume, err := d.mixer.CurrentVolume(id, kind)
	if err != nil {
		return result{}, err
	}
	return result{message: "Here is the current volume", data: map[string]any{"volume": volume}}, nil
}

func (d *Dispatcher) adjustEq(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	eqType, err := args.RequireString("eqType")
	if err != nil {
		return result{}, err
	}
	band, err := domain.ParseEqBand(eqType)
	if err != nil {
		return result{}, err
	}
	gain, err := args.RequireFloat("gain")
	if err != nil {
		return result{}, err
	}
	frequency, err := args.RequireFloat("frequency")
	if err != nil {
		return result{}, err
	}
	if err := d.mixer.AdjustEq(id, kind, band, gain, frequency); err != nil {
		return result{}, err
	}
	return result{message: "You are adjusting EQ"}, nil
}

func (d *Dispatcher) currentEq(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	eq, err := d.mixer.CurrentEq(id, kind)
	if err != nil {
		return result{}, err
	}
	return result{message: "Here is the current EQ", data: eq.Map()}, nil
}

func (d *Dispatcher) setElapsedTimeEvent(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	name, err := args.RequireString("eventName")
	if err != nil {
		return result{}, err
	}
	if err := d.mixer.SetElapsedTimeEvent(id, kind, name); err != nil {
		return result{}, err
	}
	return result{message: "set elapsed time event"}, nil
}

func (d *Dispatcher) elapsedTime(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	t, err := d.mixer.ElapsedTime(id, kind)
	if err != nil {
		return result{}, err
	}
	return result{message: "got elapsed time", data: t.Map()}, nil
}

func (d *Dispatcher) totalTime(_ context.Context, args Args) (result, error) {
	id, kind, err := channelArgs(args)
	if err != nil {
		return result{}, err
	}
	t, err := d.mixer.TotalTime(id, kind)
	if err != nil {
		return result{}, err
	}
	return result{message: "got total time", data: t.Map()}, nil
}
