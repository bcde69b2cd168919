// Package model defines the core data structures shared by the engine, the
// notification sinks and the user interface.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind is the kind of a notification emitted by the engine.
type EventKind int

const (
	EventFatalStartup EventKind = iota
	EventDecode
	EventPlayback
	EventStreamFault
)

// EventKindNames maps event kinds to human-readable names.
var EventKindNames = map[EventKind]string{
	EventFatalStartup: "fatal_startup_error",
	EventDecode:       "decode_error",
	EventPlayback:     "playback_error",
	EventStreamFault:  "stream_fault",
}

func (k EventKind) String() string {
	return EventKindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	name, ok := EventKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(text []byte) error {
	for kind, name := range EventKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Severity is how loudly the UI should present an event.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Event is a discrete engine notification for the UI layer.
type Event struct {
	ID      string    `json:"id" yaml:"id"`
	Kind    EventKind `json:"kind" yaml:"kind"`
	Title   string    `json:"title" yaml:"title"`
	Message string    `json:"message" yaml:"message"`
	Time    time.Time `json:"time" yaml:"time"`
	Err     error     `json:"-" yaml:"-"`
}

// NewID returns a new ULID string.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// EventFromError converts an engine error into an Event.
func EventFromError(err error) Event {
	ev := Event{
		ID:      NewID(),
		Message: err.Error(),
		Time:    time.Now(),
		Err:     err,
	}

	var e *Error
	if !errors.As(err, &e) {
		ev.Kind = EventPlayback
		ev.Title = "Something went wrong"
		return ev
	}

	switch e.Kind {
	case KindDeviceEnumeration, KindDeviceResolution, KindStreamOpen:
		ev.Kind = EventFatalStartup
		ev.Title = "Audio setup failed"
	case KindDecode:
		ev.Kind = EventDecode
		ev.Title = "Cannot read sound"
	case KindPlayback:
		ev.Kind = EventPlayback
		ev.Title = "Playback failed"
	case KindStreamFault:
		ev.Kind = EventStreamFault
		ev.Title = "Microphone loopback stopped"
	case KindUnknown:
		ev.Kind = EventPlayback
		ev.Title = "Something went wrong"
	}

	if hint := e.Hint(); hint != "" {
		ev.Message += " (" + hint + ")"
	}
	return ev
}

// Severity returns the presentation severity of the event.
func (e Event) Severity() Severity {
	switch e.Kind {
	case EventFatalStartup, EventStreamFault:
		return SeverityError
	case EventDecode, EventPlayback:
		return SeverityWarning
	}
	return SeverityWarning
}
