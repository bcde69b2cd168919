package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/playback"
)

// PlayerOptions configures a Player.
type PlayerOptions struct {
	// Grace is the time allowed past a clip's length before the render is
	// reported as stalled.
	Grace time.Duration
	// PeriodFrames is the device period; 0 lets the backend choose.
	PeriodFrames int
	Logger       *slog.Logger
}

// Player renders clips to one output device. It implements
// playback.Renderer. A Player is used by a single worker; Render calls never
// overlap.
type Player struct {
	sys    *System
	dev    device.AudioDevice
	opts   PlayerOptions
	logger *slog.Logger
}

func newPlayer(sys *System, dev device.AudioDevice, opts PlayerOptions) *Player {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		sys:    sys,
		dev:    dev,
		opts:   opts,
		logger: logger.With("device", dev.Name),
	}
}

// Device returns the device the player renders to.
func (p *Player) Device() device.AudioDevice {
	return p.dev
}

// Render plays r and returns once the last frame has been handed to the
// device, the device stops, or the clip length plus the grace period elapses.
func (p *Player) Render(r *playback.Request) error {
	if ok, err := playable(r); !ok {
		return err
	}

	id, err := p.sys.lookup(p.dev.ID)
	if err != nil {
		return err
	}

	p.sys.mu.RLock()
	ctx := p.sys.ctx
	p.sys.mu.RUnlock()
	if ctx == nil {
		return ErrClosed
	}

	c := newCursor(r.Samples)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(r.Channels)
	cfg.Playback.DeviceID = id.Pointer()
	cfg.SampleRate = uint32(r.SampleRate)
	if p.opts.PeriodFrames > 0 {
		cfg.PeriodSizeInFrames = uint32(p.opts.PeriodFrames)
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: c.fill,
		Stop: c.stop,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	timeout := stallTimeout(r, p.opts)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	err = c.wait(timer.C)
	if errors.Is(err, model.ErrDeviceStopped) {
		return err
	}

	c.closing.Store(true)
	if stopErr := dev.Stop(); stopErr != nil {
		p.logger.Debug("failed to stop playback device", "error", stopErr)
	}
	if errors.Is(err, model.ErrRenderStalled) {
		return fmt.Errorf("%w: %s after %s", err, r.Name, timeout)
	}
	return err
}

// playable reports whether r has frames to render. A request without a
// usable format is an error even when it carries samples.
func playable(r *playback.Request) (bool, error) {
	if r.Channels <= 0 || r.SampleRate <= 0 {
		return false, model.ErrEmptyRequestFormat
	}
	return r.Frames() > 0, nil
}

// stallTimeout is the clip length plus the grace period. The grace is at
// least config.MinRenderGrace and at least four device periods.
func stallTimeout(r *playback.Request, opts PlayerOptions) time.Duration {
	grace := max(opts.Grace, config.MinRenderGrace)
	if opts.PeriodFrames > 0 && r.SampleRate > 0 {
		periods := time.Duration(4*opts.PeriodFrames) * time.Second / time.Duration(r.SampleRate)
		grace = max(grace, periods)
	}
	return r.Duration() + grace
}

// cursor feeds one clip to the device callback.
type cursor struct {
	data    []byte
	pos     int
	tail    int
	closing atomic.Bool
	done    chan struct{}
	stopped chan struct{}
}

func newCursor(samples []float32) *cursor {
	data := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(s))
	}
	return &cursor{
		data:    data,
		done:    make(chan struct{}, 1),
		stopped: make(chan struct{}, 1),
	}
}

// fill runs on the backend thread. The clip is finished once a full period of
// silence follows the last frame, so the tail has reached the device.
func (c *cursor) fill(out, _ []byte, _ uint32) {
	n := copy(out, c.data[c.pos:])
	c.pos += n
	if n == len(out) {
		return
	}
	clear(out[n:])

	if c.pos < len(c.data) {
		return
	}
	c.tail++
	if c.tail == 2 {
		select {
		case c.done <- struct{}{}:
		default:
		}
	}
}

// wait blocks until the clip has drained, the device stops on its own or
// expired fires.
func (c *cursor) wait(expired <-chan time.Time) error {
	select {
	case <-c.done:
		return nil
	case <-c.stopped:
		return model.ErrDeviceStopped
	case <-expired:
		return model.ErrRenderStalled
	}
}

func (c *cursor) stop() {
	if c.closing.Load() {
		return
	}
	select {
	case c.stopped <- struct{}{}:
	default:
	}
}
