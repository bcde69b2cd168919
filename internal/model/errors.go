package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures. The set is closed; callers switch on it
// exhaustively.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that are not engine errors.
	KindUnknown Kind = iota
	// KindDeviceEnumeration means the audio subsystem could not be queried.
	KindDeviceEnumeration
	// KindDeviceResolution means a required device (usually the virtual cable) is missing.
	KindDeviceResolution
	// KindStreamOpen means the loopback stream could not be opened or started.
	KindStreamOpen
	// KindDecode means a clip could not be decoded.
	KindDecode
	// KindPlayback means a clip could not be rendered to its device.
	KindPlayback
	// KindStreamFault means the running loopback stream was stopped by the backend.
	KindStreamFault
)

// KindNames maps kinds to stable names used in logs and output.
var KindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindDeviceEnumeration: "device_enumeration",
	KindDeviceResolution:  "device_resolution",
	KindStreamOpen:        "stream_open",
	KindDecode:            "decode",
	KindPlayback:          "playback",
	KindStreamFault:       "stream_fault",
}

func (k Kind) String() string {
	if name, ok := KindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fatal reports whether the kind aborts startup.
func (k Kind) Fatal() bool {
	switch k {
	case KindDeviceEnumeration, KindDeviceResolution, KindStreamOpen:
		return true
	case KindUnknown, KindDecode, KindPlayback, KindStreamFault:
		return false
	}
	return false
}

// Sentinel causes wrapped by Error.
var (
	ErrCableNotFound      = errors.New("virtual cable device not found")
	ErrDeviceNotFound     = errors.New("audio device not found")
	ErrNoDefaultDevice    = errors.New("no default device reported")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrDeviceStopped      = errors.New("device stopped unexpectedly")
	ErrRenderStalled      = errors.New("render did not complete in time")
	ErrInvalidChannels    = errors.New("channel count must be 1 or 2")
	ErrInvalidBlockSize   = errors.New("block size must be positive")
	ErrInvalidSampleRate  = errors.New("sample rate must be positive")
	ErrRendererPanic      = errors.New("renderer panicked")
	ErrEmptyRequestFormat = errors.New("request has no channels or sample rate")
)

// Error is the structured engine error. Op names the failing operation,
// Device and Path add context when known.
type Error struct {
	Kind   Kind
	Op     string
	Device string
	Path   string
	Err    error
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithDevice returns a copy of e annotated with a device name.
func (e *Error) WithDevice(name string) *Error {
	c := *e
	c.Device = name
	return &c
}

// WithPath returns a copy of e annotated with a file path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Device != "" {
		fmt.Fprintf(&b, " [device %q]", e.Device)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " [file %q]", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hint returns a user-actionable suggestion for the error, if any.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindDeviceResolution:
		if errors.Is(e.Err, ErrCableNotFound) {
			return "install/enable the virtual cable device"
		}
		return "check the configured audio devices with `dionysus devices`"
	case KindDeviceEnumeration:
		return "check that the audio subsystem is running"
	case KindStreamOpen:
		return "check that the microphone and virtual cable support the configured channels and sample rate"
	case KindStreamFault:
		return "restart the application to reconnect the audio devices"
	case KindUnknown, KindDecode, KindPlayback:
		return ""
	}
	return ""
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
