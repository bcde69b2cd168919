// Package notify delivers engine events to the user.
//
// A Fanout reads the engine's event channel and hands every event to each
// registered Sink. Sinks must not block for long; the desktop sink
// rate-limits repeats of the same event.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmylchreest/dionysus/internal/model"
)

// Sink receives engine events.
type Sink interface {
	Notify(ev model.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev model.Event)

// Notify calls f(ev).
func (f SinkFunc) Notify(ev model.Event) {
	f(ev)
}

// Fanout forwards events from a channel to a set of sinks.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
	done  chan struct{}
}

// NewFanout creates a Fanout delivering to sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, done: make(chan struct{})}
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Run delivers events until the channel is closed.
func (f *Fanout) Run(events <-chan model.Event) {
	defer close(f.done)
	for ev := range events {
		f.mu.RLock()
		sinks := f.sinks
		f.mu.RUnlock()

		for _, s := range sinks {
			s.Notify(ev)
		}
	}
}

// Start runs the fanout in a new goroutine.
func (f *Fanout) Start(events <-chan model.Event) {
	go f.Run(events)
}

// Done is closed once every event has been delivered.
func (f *Fanout) Done() <-chan struct{} {
	return f.done
}

// LogSink writes events to a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify logs ev at warning or error level depending on its severity.
func (s *LogSink) Notify(ev model.Event) {
	level := slog.LevelWarn
	if ev.Severity() == model.SeverityError {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, ev.Title,
		"kind", ev.Kind.String(),
		"message", ev.Message,
		"id", ev.ID,
	)
}
