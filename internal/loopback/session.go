// Package loopback routes the live microphone into the virtual cable.
//
// A Session owns one duplex stream bound to the resolved input device and the
// cable output. The backend calls the data callback on its realtime thread;
// the callback copies each captured block into the output block untouched.
package loopback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
)

// Params describes a duplex stream. Both sides use 32-bit float samples.
type Params struct {
	InputID    string
	OutputID   string
	Channels   int
	BlockSize  int
	SampleRate int
}

// Callbacks are invoked by the backend. Data runs on the realtime thread and
// receives byte views of the output and input blocks. Stop is invoked when the
// stream stops for any reason.
type Callbacks struct {
	Data func(out, in []byte, frames uint32)
	Stop func()
}

// Stream is an opened duplex stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Opener opens duplex streams on an audio backend.
type Opener interface {
	OpenDuplex(p Params, cb Callbacks) (Stream, error)
}

// Session is the running loopback between input and cable.
type Session struct {
	params  Params
	input   string
	cable   string
	stream  Stream
	onFault func(error)
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closing atomic.Bool
	faulted atomic.Bool
}

// Open opens the duplex stream for res.Input → res.Cable. onFault is called at
// most once, from a backend thread, if the stream stops without Close being
// called. It must not block.
func Open(opener Opener, res device.Resolution, cfg config.EngineConfig, onFault func(error), logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if onFault == nil {
		onFault = func(error) {}
	}

	params := Params{
		InputID:    res.Input.ID,
		OutputID:   res.Cable.ID,
		Channels:   cfg.Channels,
		BlockSize:  cfg.BlockSize,
		SampleRate: cfg.SampleRate,
	}
	if err := params.validate(); err != nil {
		return nil, model.NewError(model.KindStreamOpen, "open loopback", err).WithDevice(res.Cable.Name)
	}

	s := &Session{
		params:  params,
		input:   res.Input.Name,
		cable:   res.Cable.Name,
		onFault: onFault,
		logger:  logger.With("component", "loopback"),
	}

	stream, err := opener.OpenDuplex(params, Callbacks{Data: Passthrough, Stop: s.stopped})
	if err != nil {
		return nil, model.NewError(model.KindStreamOpen, "open loopback", err).WithDevice(res.Cable.Name)
	}
	s.stream = stream

	s.logger.Debug("loopback opened",
		"input", s.input, "cable", s.cable,
		"channels", params.Channels, "block", params.BlockSize, "rate", params.SampleRate)
	return s, nil
}

// Params returns the stream parameters.
func (s *Session) Params() Params {
	return s.params
}

// Start starts the stream.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return model.NewError(model.KindStreamOpen, "start loopback", err).WithDevice(s.cable)
	}
	s.started = true
	s.logger.Info("loopback started", "input", s.input, "cable", s.cable)
	return nil
}

// Close stops the stream and releases it. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closing.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stopErr error
	if s.started {
		stopErr = s.stream.Stop()
		s.started = false
	}
	closeErr := s.stream.Close()

	s.logger.Debug("loopback closed")
	if stopErr != nil {
		return fmt.Errorf("stop loopback: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close loopback: %w", closeErr)
	}
	return nil
}

// Faulted reports whether the stream stopped unexpectedly.
func (s *Session) Faulted() bool {
	return s.faulted.Load()
}

// stopped is the backend stop callback.
func (s *Session) stopped() {
	if s.closing.Load() || s.faulted.Swap(true) {
		return
	}
	err := model.NewError(model.KindStreamFault, "loopback", model.ErrDeviceStopped).WithDevice(s.cable)
	s.logger.Error("loopback stopped unexpectedly", "input", s.input, "cable", s.cable)
	s.onFault(err)
}

// Passthrough copies the captured block into the output block. When the
// blocks differ in length the remainder of out is zeroed. A panic zeroes out.
// It never allocates, locks or blocks.
func Passthrough(out, in []byte, _ uint32) {
	defer func() {
		if recover() != nil {
			clear(out)
		}
	}()

	n := copy(out, in)
	if n < len(out) {
		clear(out[n:])
	}
}

func (p Params) validate() error {
	switch {
	case p.Channels != 1 && p.Channels != 2:
		return fmt.Errorf("%w: %d", model.ErrInvalidChannels, p.Channels)
	case p.BlockSize <= 0:
		return fmt.Errorf("%w: %d", model.ErrInvalidBlockSize, p.BlockSize)
	case p.SampleRate <= 0:
		return fmt.Errorf("%w: %d", model.ErrInvalidSampleRate, p.SampleRate)
	}
	return nil
}
