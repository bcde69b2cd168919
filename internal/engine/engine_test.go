package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/decode"
	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/loopback"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/playback"
)

type render struct {
	id         string
	name       string
	start, end time.Time
}

type fakeRenderer struct {
	dest  string
	delay time.Duration
	gate  chan struct{}
	err   error

	mu      sync.Mutex
	renders []render
}

func (r *fakeRenderer) Render(req *playback.Request) error {
	start := time.Now()
	if r.gate != nil {
		<-r.gate
	}
	time.Sleep(r.delay)
	r.mu.Lock()
	r.renders = append(r.renders, render{id: req.ID, name: req.Name, start: start, end: time.Now()})
	r.mu.Unlock()
	return r.err
}

func (r *fakeRenderer) all() []render {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]render(nil), r.renders...)
}

type fakeStream struct {
	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *fakeStream) Start() error { s.mu.Lock(); s.started = true; s.mu.Unlock(); return nil }
func (s *fakeStream) Stop() error  { return nil }
func (s *fakeStream) Close() error { s.mu.Lock(); s.closed = true; s.mu.Unlock(); return nil }

func (s *fakeStream) state() (started, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.closed
}

type fakeBackend struct {
	devices []device.AudioDevice
	enumErr error
	openErr error

	// enumerating, when set, is closed once Enumerate is entered; Enumerate
	// then waits for enumGate.
	enumerating chan struct{}
	enumGate    chan struct{}

	local *fakeRenderer
	cable *fakeRenderer

	stream    *fakeStream
	callbacks loopback.Callbacks
	renderers int
	closed    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		devices: []device.AudioDevice{
			{ID: "mic", Name: "Microphone", Direction: device.DirectionInput, DefaultInput: true},
			{ID: "spk", Name: "Speakers", Direction: device.DirectionOutput, DefaultOutput: true},
			{ID: "cab", Name: config.DefaultCableDevice, Direction: device.DirectionOutput},
		},
		local: &fakeRenderer{dest: DestinationLocal},
		cable: &fakeRenderer{dest: DestinationCable},
	}
}

func (b *fakeBackend) Enumerate() ([]device.AudioDevice, error) {
	if b.enumerating != nil {
		close(b.enumerating)
		<-b.enumGate
	}
	return b.devices, b.enumErr
}

func (b *fakeBackend) OpenDuplex(_ loopback.Params, cb loopback.Callbacks) (loopback.Stream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.callbacks = cb
	b.stream = &fakeStream{}
	return b.stream, nil
}

func (b *fakeBackend) Renderer(dev device.AudioDevice, _ time.Duration) playback.Renderer {
	b.renderers++
	if dev.ID == "cab" {
		return b.cable
	}
	return b.local
}

func (b *fakeBackend) Close() error {
	b.closed++
	return nil
}

type fakeDecoder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (d *fakeDecoder) Decode(path string) (*playback.Request, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if err := d.fail[path]; err != nil {
		return nil, err
	}
	return &playback.Request{
		Name:       filepath.Base(path),
		Path:       path,
		Samples:    make([]float32, 960),
		Channels:   2,
		SampleRate: 48000,
	}, nil
}

func testConfig() config.EngineConfig {
	return config.DefaultConfig().Engine()
}

func drainEvents(e *Engine) []model.Event {
	var out []model.Event
	for ev := range e.Events() {
		out = append(out, ev)
	}
	return out
}

func startEngine(t *testing.T, b *fakeBackend, d decode.Source) *Engine {
	t.Helper()
	e := New(testConfig(), b, d, nil)
	require.NoError(t, e.Start(context.Background()))
	return e
}

func TestStart_WiresDevices(t *testing.T) {
	b := newFakeBackend()
	e := startEngine(t, b, &fakeDecoder{})

	assert.True(t, e.Running())
	res := e.Devices()
	assert.Equal(t, "mic", res.Input.ID)
	assert.Equal(t, "spk", res.Output.ID)
	assert.Equal(t, "cab", res.Cable.ID)
	assert.Equal(t, 2, b.renderers)

	started, _ := b.stream.state()
	assert.True(t, started)

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Shutdown())

	_, closed := b.stream.state()
	assert.True(t, closed)
	assert.Equal(t, 1, b.closed)
	assert.Empty(t, drainEvents(e))
}

func TestStart_FailuresAreAllOrNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *fakeBackend)
		kind   model.Kind
		opened bool
	}{
		{
			name:   "enumeration",
			mutate: func(b *fakeBackend) { b.enumErr = errors.New("no audio server") },
			kind:   model.KindDeviceEnumeration,
		},
		{
			name:   "cable_missing",
			mutate: func(b *fakeBackend) { b.devices = b.devices[:2] },
			kind:   model.KindDeviceResolution,
		},
		{
			name:   "stream_open",
			mutate: func(b *fakeBackend) { b.openErr = errors.New("format not supported") },
			kind:   model.KindStreamOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			tt.mutate(b)

			e := New(testConfig(), b, &fakeDecoder{}, nil)
			err := e.Start(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.kind, model.KindOf(err))

			assert.False(t, e.Running())
			assert.Equal(t, device.Resolution{}, e.Devices())
			assert.Zero(t, b.renderers, "workers must not start")
			assert.Equal(t, 1, b.closed, "backend must be released")

			events := drainEvents(e)
			require.Len(t, events, 1)
			assert.Equal(t, model.EventFatalStartup, events[0].Kind)

			assert.ErrorIs(t, e.Trigger("/sounds/a.wav"), ErrEngineStopped)
			assert.ErrorIs(t, e.Start(context.Background()), ErrEngineStopped)
			require.NoError(t, e.Shutdown())
			assert.Equal(t, 1, b.closed)
		})
	}
}

func TestStart_CableNotFoundMessage(t *testing.T) {
	b := newFakeBackend()
	b.devices = b.devices[:2]

	e := New(testConfig(), b, &fakeDecoder{}, nil)
	err := e.Start(context.Background())
	assert.ErrorIs(t, err, model.ErrCableNotFound)

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "install/enable the virtual cable device")
}

func TestStart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := newFakeBackend()
	e := New(testConfig(), b, &fakeDecoder{}, nil)
	assert.ErrorIs(t, e.Start(ctx), context.Canceled)
	assert.Nil(t, b.stream)
}

func TestShutdown_DuringFailingStart(t *testing.T) {
	b := newFakeBackend()
	b.enumErr = errors.New("no audio server")
	b.enumerating = make(chan struct{})
	b.enumGate = make(chan struct{})

	e := New(testConfig(), b, &fakeDecoder{}, nil)

	started := make(chan error, 1)
	go func() { started <- e.Start(context.Background()) }()
	<-b.enumerating

	stopped := make(chan error, 1)
	go func() { stopped <- e.Shutdown() }()

	// Give Shutdown time to enter and wait for the in-flight Start.
	time.Sleep(20 * time.Millisecond)
	close(b.enumGate)

	select {
	case err := <-started:
		assert.ErrorContains(t, err, "no audio server")
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	assert.Equal(t, 1, b.closed)
	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventFatalStartup, events[0].Kind)
	assert.ErrorIs(t, e.Trigger("/sounds/a.wav"), ErrEngineStopped)
}

func TestTrigger_BeforeStart(t *testing.T) {
	e := New(testConfig(), newFakeBackend(), &fakeDecoder{}, nil)
	assert.ErrorIs(t, e.Trigger("/sounds/a.wav"), ErrNotStarted)
}

func TestTrigger_QueuesSameRequestOnBothDevices(t *testing.T) {
	b := newFakeBackend()
	e := startEngine(t, b, &fakeDecoder{})

	require.NoError(t, e.Trigger("/sounds/airhorn.mp3"))
	require.NoError(t, e.Shutdown())

	local, cable := b.local.all(), b.cable.all()
	require.Len(t, local, 1)
	require.Len(t, cable, 1)
	assert.Equal(t, "airhorn.mp3", local[0].name)
	assert.NotEmpty(t, local[0].id)
	assert.Equal(t, local[0].id, cable[0].id)
}

func TestTrigger_EachTriggerGetsNewID(t *testing.T) {
	b := newFakeBackend()
	e := startEngine(t, b, decode.NewCache(&fakeDecoder{}, nil))

	require.NoError(t, e.Trigger("/sounds/a.wav"))
	require.NoError(t, e.Trigger("/sounds/a.wav"))
	require.NoError(t, e.Shutdown())

	local := b.local.all()
	require.Len(t, local, 2)
	assert.NotEqual(t, local[0].id, local[1].id)
}

func TestTrigger_UnsupportedExtensionIsNotDecoded(t *testing.T) {
	b := newFakeBackend()
	dec := &fakeDecoder{}
	e := startEngine(t, b, dec)

	err := e.Trigger("/sounds/readme.txt")
	assert.ErrorIs(t, err, model.ErrUnsupportedFormat)
	assert.Equal(t, model.KindDecode, model.KindOf(err))
	assert.Zero(t, dec.calls)

	require.NoError(t, e.Shutdown())
	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDecode, events[0].Kind)
}

func TestTrigger_DecoderErrorsAreClassified(t *testing.T) {
	b := newFakeBackend()
	dec := &fakeDecoder{fail: map[string]error{"/sounds/x.wav": errors.New("boom")}}
	e := startEngine(t, b, dec)

	err := e.Trigger("/sounds/x.wav")
	assert.Equal(t, model.KindDecode, model.KindOf(err))

	require.NoError(t, e.Shutdown())
	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDecode, events[0].Kind)
}

func writeWAV(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	silence := beep.Silence(480)
	format := beep.Format{SampleRate: 48000, NumChannels: 2, Precision: 2}
	require.NoError(t, wav.Encode(f, silence, format))
}

func TestTrigger_MalformedFileThenValidFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.wav")
	good := filepath.Join(dir, "good.wav")
	require.NoError(t, os.WriteFile(bad, []byte("RIFF"), 0o644))
	writeWAV(t, good)

	b := newFakeBackend()
	gate := make(chan struct{})
	b.local.gate = gate
	b.cable.gate = gate

	e := startEngine(t, b, decode.Decoder{})

	err := e.Trigger(bad)
	require.Error(t, err)
	assert.Equal(t, model.KindDecode, model.KindOf(err))

	local, cable := e.Pending()
	assert.Zero(t, local)
	assert.Zero(t, cable)

	select {
	case ev := <-e.Events():
		assert.Equal(t, model.EventDecode, ev.Kind)
		assert.Contains(t, ev.Message, "bad.wav")
	case <-time.After(time.Second):
		t.Fatal("no decode event")
	}
	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected second event: %v", ev)
	default:
	}

	require.NoError(t, e.Trigger(good))
	close(gate)
	require.NoError(t, e.Shutdown())

	require.Len(t, b.local.all(), 1)
	require.Len(t, b.cable.all(), 1)
	assert.Equal(t, "good.wav", b.local.all()[0].name)
	assert.Empty(t, drainEvents(e))
}

func TestShutdown_DrainsPendingClips(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.local.gate = gate
	b.cable.gate = gate

	e := startEngine(t, b, &fakeDecoder{})

	const k = 5
	for range k {
		require.NoError(t, e.Trigger("/sounds/clip.ogg"))
	}

	done := make(chan error, 1)
	go func() { done <- e.Shutdown() }()

	// Shutdown must wait for the workers.
	select {
	case <-done:
		t.Fatal("shutdown returned before queued clips rendered")
	case <-time.After(50 * time.Millisecond):
	}

	assert.ErrorIs(t, e.Trigger("/sounds/clip.ogg"), ErrEngineStopped)

	close(gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not finish")
	}

	assert.Len(t, b.local.all(), k)
	assert.Len(t, b.cable.all(), k)
	assert.Empty(t, drainEvents(e))
	require.NoError(t, e.Shutdown())
	assert.Equal(t, 1, b.closed)
}

func TestBackToBackTriggers_SequentialPerDeviceConcurrentAcross(t *testing.T) {
	b := newFakeBackend()
	b.local.delay = 60 * time.Millisecond
	b.cable.delay = 60 * time.Millisecond

	e := startEngine(t, b, &fakeDecoder{})
	require.NoError(t, e.Trigger("/sounds/a.wav"))
	require.NoError(t, e.Trigger("/sounds/a.wav"))
	require.NoError(t, e.Shutdown())

	local, cable := b.local.all(), b.cable.all()
	require.Len(t, local, 2)
	require.Len(t, cable, 2)

	assert.False(t, local[0].end.After(local[1].start))
	assert.False(t, cable[0].end.After(cable[1].start))
	assert.True(t, local[0].start.Before(cable[0].end))
	assert.True(t, cable[0].start.Before(local[0].end))
}

func TestRenderFailuresBecomePlaybackEvents(t *testing.T) {
	b := newFakeBackend()
	b.cable.err = errors.New("device unplugged")

	e := startEngine(t, b, &fakeDecoder{})
	require.NoError(t, e.Trigger("/sounds/a.wav"))
	require.NoError(t, e.Trigger("/sounds/b.wav"))
	require.NoError(t, e.Shutdown())

	assert.Len(t, b.local.all(), 2)
	events := drainEvents(e)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, model.EventPlayback, ev.Kind)
		assert.Contains(t, ev.Message, DestinationCable)
	}
}

func TestLoopbackFaultIsReportedOnce(t *testing.T) {
	b := newFakeBackend()
	e := startEngine(t, b, &fakeDecoder{})

	b.callbacks.Stop()
	b.callbacks.Stop()

	require.NoError(t, e.Trigger("/sounds/a.wav"))
	require.NoError(t, e.Shutdown())

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStreamFault, events[0].Kind)
	assert.Len(t, b.local.all(), 1)
}

func TestEventsAreDroppedWhenBufferIsFull(t *testing.T) {
	cfg := testConfig()
	cfg.EventBuffer = 2

	b := newFakeBackend()
	e := New(cfg, b, &fakeDecoder{}, nil)
	require.NoError(t, e.Start(context.Background()))

	for range 5 {
		_ = e.Trigger("/sounds/nope.txt")
	}
	require.NoError(t, e.Shutdown())
	assert.Len(t, drainEvents(e), 2)
}
