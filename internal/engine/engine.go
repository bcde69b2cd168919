// Package engine wires the device catalog, the loopback stream and the two
// playback queues into the soundboard engine.
//
// The engine has three states. Start moves it from idle to running; any
// startup failure and every Shutdown move it to stopped, which is final.
// Failures are reported as model.Event values on Events, which is closed
// once the engine has stopped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/decode"
	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/loopback"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/playback"
)

// Sentinel errors.
var (
	ErrEngineStopped = errors.New("engine is stopped")
	ErrNotStarted    = errors.New("engine is not started")
)

// Destination names, used for workers and log attributes.
const (
	DestinationLocal = "local"
	DestinationCable = "cable"
)

// Backend is the audio subsystem the engine runs on. The engine takes
// ownership and closes it on shutdown.
type Backend interface {
	device.Enumerator
	loopback.Opener
	Renderer(dev device.AudioDevice, grace time.Duration) playback.Renderer
	Close() error
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Engine is the soundboard engine.
type Engine struct {
	cfg     config.EngineConfig
	backend Backend
	decoder decode.Source
	logger  *slog.Logger

	mu      sync.Mutex
	state   state
	res     device.Resolution
	loop    *loopback.Session
	local   *playback.Queue
	cable   *playback.Queue
	workers []*playback.Worker

	eventsMu     sync.RWMutex
	events       chan model.Event
	eventsClosed bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an idle engine.
func New(cfg config.EngineConfig, backend Backend, decoder decode.Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		backend: backend,
		decoder: decoder,
		logger:  logger.With("component", "engine"),
		local:   playback.NewQueue(),
		cable:   playback.NewQueue(),
		events:  make(chan model.Event, max(cfg.EventBuffer, 1)),
	}
}

// Events returns the notification channel. It is closed after the engine
// stops.
func (e *Engine) Events() <-chan model.Event {
	return e.events
}

// Devices returns the resolved devices. It is empty until Start succeeds.
func (e *Engine) Devices() device.Resolution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.res
}

// Running reports whether the engine accepts triggers.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateRunning
}

// Pending returns the number of queued clips per destination.
func (e *Engine) Pending() (local, cable int) {
	return e.local.Len(), e.cable.Len()
}

// Start resolves the devices, starts the loopback stream and then the
// playback workers. On failure everything already acquired is released, a
// FatalStartupError event is published, the engine stops and the error is
// returned.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()

	switch e.state {
	case stateRunning:
		e.mu.Unlock()
		return nil
	case stateStopped:
		e.mu.Unlock()
		return ErrEngineStopped
	case stateIdle:
	}

	err := e.start(ctx)
	if err == nil {
		e.state = stateRunning
		e.mu.Unlock()
		e.logger.Info("engine started",
			"input", e.res.Input.Name, "output", e.res.Output.Name, "cable", e.res.Cable.Name)
		return nil
	}

	e.logger.Error("engine startup failed", "error", err)
	ev := model.EventFromError(err)
	ev.Kind = model.EventFatalStartup
	ev.Title = "Audio setup failed"
	e.publish(ev)
	e.state = stateStopped
	e.mu.Unlock()

	// Shutdown takes e.mu inside shutdownOnce, so release must run unlocked.
	e.shutdownOnce.Do(func() {
		e.shutdownErr = e.release()
	})
	return err
}

func (e *Engine) start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := device.NewCatalog(e.backend, e.cfg, e.logger).Resolve()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	loop, err := loopback.Open(e.backend, res, e.cfg, e.fault, e.logger)
	if err != nil {
		return err
	}
	if err := loop.Start(); err != nil {
		_ = loop.Close()
		return err
	}

	e.res = res
	e.loop = loop
	e.workers = []*playback.Worker{
		playback.NewWorker(DestinationLocal, e.local,
			e.backend.Renderer(res.Output, e.cfg.RenderGrace), e.report, e.logger),
		playback.NewWorker(DestinationCable, e.cable,
			e.backend.Renderer(res.Cable, e.cfg.RenderGrace), e.report, e.logger),
	}
	for _, w := range e.workers {
		w.Start()
	}
	return nil
}

// Trigger decodes path and queues it on both destinations. A decode failure
// publishes one DecodeError event and queues nothing.
func (e *Engine) Trigger(path string) error {
	if err := e.accepting(); err != nil {
		return err
	}

	req, err := e.decode(path)
	if err != nil {
		e.logger.Warn("failed to decode clip", "path", path, "error", err)
		e.publish(model.EventFromError(err))
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateRunning {
		return ErrEngineStopped
	}
	// Both queues are sealed together under mu, so either both accept or
	// neither does.
	if err := e.local.Enqueue(playback.Play(req)); err != nil {
		return ErrEngineStopped
	}
	if err := e.cable.Enqueue(playback.Play(req)); err != nil {
		return ErrEngineStopped
	}

	e.logger.Debug("clip queued", "clip", req.Name, "id", req.ID, "frames", req.Frames())
	return nil
}

func (e *Engine) accepting() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateIdle:
		return ErrNotStarted
	case stateStopped:
		return ErrEngineStopped
	case stateRunning:
	}
	return nil
}

// decode returns a fresh request for path. Cached requests are shared, so the
// samples are reused and only the identity is new.
func (e *Engine) decode(path string) (*playback.Request, error) {
	if !decode.Supported(path) {
		return nil, model.NewError(model.KindDecode, "decode clip",
			fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, path)).WithPath(path)
	}

	src, err := e.decoder.Decode(path)
	if err != nil {
		if model.KindOf(err) == model.KindUnknown {
			err = model.NewError(model.KindDecode, "decode clip", err).WithPath(path)
		}
		return nil, err
	}

	req := *src
	req.ID = model.NewID()
	return &req, nil
}

// Shutdown stops accepting triggers, lets both workers finish every queued
// clip, closes the loopback stream, releases the backend and closes the
// event channel. It is idempotent and returns the first release error.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		running := e.state == stateRunning
		e.state = stateStopped
		if running {
			_ = e.local.Enqueue(playback.Shutdown())
			_ = e.cable.Enqueue(playback.Shutdown())
		}
		e.mu.Unlock()

		if running {
			local, cable := e.Pending()
			e.logger.Debug("draining playback queues", "local", local, "cable", cable)
			for _, w := range e.workers {
				<-w.Done()
			}
		}

		e.shutdownErr = e.release()
		e.logger.Info("engine stopped")
	})
	return e.shutdownErr
}

// release closes the loopback, the backend and the event channel.
func (e *Engine) release() error {
	var errs []error
	if e.loop != nil {
		if err := e.loop.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release audio backend: %w", err))
	}

	e.eventsMu.Lock()
	e.eventsClosed = true
	close(e.events)
	e.eventsMu.Unlock()

	return errors.Join(errs...)
}

// report receives render failures from the workers.
func (e *Engine) report(err error) {
	e.publish(model.EventFromError(err))
}

// fault receives the loopback stream fault from the backend thread.
func (e *Engine) fault(err error) {
	e.publish(model.EventFromError(err))
}

// publish delivers ev without blocking. Events are dropped when the buffer is
// full or the engine has stopped.
func (e *Engine) publish(ev model.Event) {
	e.eventsMu.RLock()
	defer e.eventsMu.RUnlock()

	if e.eventsClosed {
		e.logger.Debug("event after shutdown dropped", "kind", ev.Kind.String(), "message", ev.Message)
		return
	}
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event buffer full, dropping event", "kind", ev.Kind.String(), "message", ev.Message)
	}
}
