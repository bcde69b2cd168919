package audio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/loopback"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/playback"
)

// ErrClosed is returned when the system is used after Close.
var ErrClosed = errors.New("audio system is closed")

// System wraps a malgo context.
type System struct {
	mu     sync.RWMutex
	logger *slog.Logger
	ctx    *malgo.AllocatedContext

	// Backend ids of the last enumeration, keyed by AudioDevice.ID
	ids map[string]malgo.DeviceID
}

// NewSystem initializes the audio backend.
func NewSystem(logger *slog.Logger) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audio")

	cfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	ctx, err := malgo.InitContext(nil, cfg, func(message string) {
		logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &System{
		logger: logger,
		ctx:    ctx,
		ids:    make(map[string]malgo.DeviceID),
	}, nil
}

// Enumerate lists capture and playback endpoints. An endpoint reported on
// both sides is merged into one duplex device.
func (s *System) Enumerate() ([]device.AudioDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return nil, ErrClosed
	}

	capture, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	render, err := s.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	var devices []device.AudioDevice
	index := make(map[string]int)
	ids := make(map[string]malgo.DeviceID, len(capture)+len(render))

	add := func(info *malgo.DeviceInfo, kind malgo.DeviceType, dir device.Direction) {
		id := hex.EncodeToString(info.ID[:])
		isDefault := info.IsDefault != 0

		if i, ok := index[id]; ok {
			d := &devices[i]
			d.Direction |= dir
			d.DefaultInput = d.DefaultInput || (dir == device.DirectionInput && isDefault)
			d.DefaultOutput = d.DefaultOutput || (dir == device.DirectionOutput && isDefault)
			d.MaxChannels = max(d.MaxChannels, s.maxChannels(kind, info.ID))
			return
		}

		index[id] = len(devices)
		ids[id] = info.ID
		devices = append(devices, device.AudioDevice{
			ID:            id,
			Name:          info.Name(),
			Direction:     dir,
			MaxChannels:   s.maxChannels(kind, info.ID),
			DefaultInput:  dir == device.DirectionInput && isDefault,
			DefaultOutput: dir == device.DirectionOutput && isDefault,
		})
	}

	for i := range capture {
		add(&capture[i], malgo.Capture, device.DirectionInput)
	}
	for i := range render {
		add(&render[i], malgo.Playback, device.DirectionOutput)
	}

	s.ids = ids
	s.logger.Debug("enumerated audio devices", "capture", len(capture), "playback", len(render))
	return devices, nil
}

// maxChannels queries the native formats of a device. 0 means unknown.
func (s *System) maxChannels(kind malgo.DeviceType, id malgo.DeviceID) int {
	info, err := s.ctx.DeviceInfo(kind, id, malgo.Shared)
	if err != nil {
		return 0
	}
	channels := 0
	for _, f := range info.Formats[:info.FormatCount] {
		channels = max(channels, int(f.Channels))
	}
	return channels
}

// lookup returns the backend id for an enumerated device.
func (s *System) lookup(id string) (malgo.DeviceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ctx == nil {
		return malgo.DeviceID{}, ErrClosed
	}
	mid, ok := s.ids[id]
	if !ok {
		return malgo.DeviceID{}, fmt.Errorf("%w: id %s", model.ErrDeviceNotFound, id)
	}
	return mid, nil
}

// OpenDuplex opens a duplex device capturing from p.InputID and rendering to
// p.OutputID, both as 32-bit float.
func (s *System) OpenDuplex(p loopback.Params, cb loopback.Callbacks) (loopback.Stream, error) {
	inID, err := s.lookup(p.InputID)
	if err != nil {
		return nil, err
	}
	outID, err := s.lookup(p.OutputID)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(p.Channels)
	cfg.Capture.DeviceID = inID.Pointer()
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(p.Channels)
	cfg.Playback.DeviceID = outID.Pointer()
	cfg.SampleRate = uint32(p.SampleRate)
	cfg.PeriodSizeInFrames = uint32(p.BlockSize)

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		return nil, ErrClosed
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: cb.Data,
		Stop: cb.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize duplex device: %w", err)
	}
	return &duplexStream{dev: dev}, nil
}

// Player returns a renderer bound to dev.
func (s *System) Player(dev device.AudioDevice, opts PlayerOptions) *Player {
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	return newPlayer(s, dev, opts)
}

// Renderer returns a Player for dev with the given stall grace period.
func (s *System) Renderer(dev device.AudioDevice, grace time.Duration) playback.Renderer {
	return s.Player(dev, PlayerOptions{Grace: grace})
}

// Close releases the backend. Devices opened from the system must be closed
// first.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
	s.ids = nil

	s.logger.Debug("audio system closed")
	if err != nil {
		return fmt.Errorf("failed to release audio context: %w", err)
	}
	return nil
}

// duplexStream adapts a malgo device to loopback.Stream.
type duplexStream struct {
	dev *malgo.Device
}

func (d *duplexStream) Start() error {
	return d.dev.Start()
}

func (d *duplexStream) Stop() error {
	return d.dev.Stop()
}

func (d *duplexStream) Close() error {
	d.dev.Uninit()
	return nil
}
