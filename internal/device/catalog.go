// Package device enumerates audio endpoints and resolves the three devices
// the engine needs: the default input, the local output and the virtual cable.
package device

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/model"
)

// Direction is the capability of an endpoint.
type Direction int

const (
	DirectionInput Direction = 1 << iota
	DirectionOutput
	DirectionDuplex = DirectionInput | DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionDuplex:
		return "duplex"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// CanCapture reports whether the endpoint can be used as an input.
func (d Direction) CanCapture() bool { return d&DirectionInput != 0 }

// CanRender reports whether the endpoint can be used as an output.
func (d Direction) CanRender() bool { return d&DirectionOutput != 0 }

// AudioDevice is one enumerated endpoint. Values are never mutated after
// enumeration.
type AudioDevice struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Direction     Direction `json:"direction" yaml:"direction"`
	MaxChannels   int       `json:"max_channels" yaml:"max_channels"`
	DefaultInput  bool      `json:"default_input" yaml:"default_input"`
	DefaultOutput bool      `json:"default_output" yaml:"default_output"`
}

// Enumerator lists the endpoints of an audio subsystem.
type Enumerator interface {
	Enumerate() ([]AudioDevice, error)
}

// Snapshot is an immutable view of the enumerated devices.
type Snapshot struct {
	devices []AudioDevice
	takenAt time.Time
}

// NewSnapshot copies devices into a new Snapshot.
func NewSnapshot(devices []AudioDevice) Snapshot {
	return Snapshot{devices: slices.Clone(devices), takenAt: time.Now()}
}

// Devices returns a copy of the enumerated devices.
func (s Snapshot) Devices() []AudioDevice {
	return slices.Clone(s.devices)
}

// Len returns the number of devices.
func (s Snapshot) Len() int {
	return len(s.devices)
}

// TakenAt returns the enumeration time.
func (s Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Resolution holds the devices selected for a run.
type Resolution struct {
	Input  AudioDevice
	Output AudioDevice
	Cable  AudioDevice
}

// Catalog resolves engine devices from an Enumerator.
type Catalog struct {
	enum   Enumerator
	cfg    config.EngineConfig
	logger *slog.Logger
}

// NewCatalog creates a Catalog.
func NewCatalog(enum Enumerator, cfg config.EngineConfig, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{enum: enum, cfg: cfg, logger: logger}
}

// Snapshot enumerates all devices.
func (c *Catalog) Snapshot() (Snapshot, error) {
	devices, err := c.enum.Enumerate()
	if err != nil {
		return Snapshot{}, model.NewError(model.KindDeviceEnumeration, "enumerate devices", err)
	}
	return NewSnapshot(devices), nil
}

// Resolve finds the input, local output and cable devices. Either all three
// are returned or an error of kind KindDeviceEnumeration or
// KindDeviceResolution.
func (c *Catalog) Resolve() (Resolution, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return Resolution{}, err
	}
	devices := snap.devices

	input, err := pick(devices, c.cfg.InputDevice, DirectionInput)
	if err != nil {
		return Resolution{}, err
	}
	output, err := pick(devices, c.cfg.OutputDevice, DirectionOutput)
	if err != nil {
		return Resolution{}, err
	}
	cable, err := FindCable(devices, c.cfg.CableDevice, c.cfg.CableMatch)
	if err != nil {
		return Resolution{}, err
	}

	c.logger.Info("resolved audio devices",
		"input", input.Name, "output", output.Name, "cable", cable.Name, "count", len(devices))

	return Resolution{Input: input, Output: output, Cable: cable}, nil
}

// FindCable returns the output device matching name under mode.
func FindCable(devices []AudioDevice, name string, mode config.MatchMode) (AudioDevice, error) {
	for _, d := range devices {
		if !d.Direction.CanRender() {
			continue
		}
		if matchName(d.Name, name, mode) {
			return d, nil
		}
	}
	return AudioDevice{}, model.NewError(model.KindDeviceResolution, "find virtual cable", model.ErrCableNotFound).
		WithDevice(name)
}

// pick returns the named device, or the default for dir when name is empty.
func pick(devices []AudioDevice, name string, dir Direction) (AudioDevice, error) {
	op := fmt.Sprintf("find %s device", dir)

	if name != "" {
		for _, d := range devices {
			if d.Direction&dir != 0 && d.Name == name {
				return d, nil
			}
		}
		return AudioDevice{}, model.NewError(model.KindDeviceResolution, op, model.ErrDeviceNotFound).WithDevice(name)
	}

	for _, d := range devices {
		if dir == DirectionInput && d.DefaultInput && d.Direction.CanCapture() {
			return d, nil
		}
		if dir == DirectionOutput && d.DefaultOutput && d.Direction.CanRender() {
			return d, nil
		}
	}
	return AudioDevice{}, model.NewError(model.KindDeviceResolution, op, model.ErrNoDefaultDevice)
}

func matchName(deviceName, want string, mode config.MatchMode) bool {
	switch mode {
	case config.MatchContains:
		return strings.Contains(strings.ToLower(deviceName), strings.ToLower(want))
	default:
		return deviceName == want
	}
}
