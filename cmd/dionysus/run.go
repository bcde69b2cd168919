package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/dionysus/internal/audio"
	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/decode"
	"github.com/jmylchreest/dionysus/internal/engine"
	"github.com/jmylchreest/dionysus/internal/library"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/notify"
	"github.com/jmylchreest/dionysus/internal/store"
	"github.com/jmylchreest/dionysus/internal/tui"
)

// uiEventBuffer bounds the events waiting to be shown as toasts.
const uiEventBuffer = 16

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the interactive soundboard",
	Long: `Launch the interactive soundboard.

The microphone loopback starts before the board is shown. If the input,
output or virtual cable device cannot be opened, dionysus exits with the
reason instead of showing the board.

Key bindings:
  j/k, ↑/↓    Navigate sounds
  enter       Play the selected sound
  /           Filter sounds
  t           Toggle emoji/text labels
  r           Reload the sound directory
  c           Toggle the clock
  ?           Show help
  q           Quit`,
	RunE: runBoard,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	c := getConfig()

	eng, closeSource, err := newEngine(c)
	if err != nil {
		return err
	}
	defer closeSource()

	// The engine's events have one consumer, the fanout. The board gets its
	// own copy through a sink.
	uiEvents := make(chan model.Event, uiEventBuffer)
	fan, closeSinks := newFanout(c, notify.SinkFunc(func(ev model.Event) {
		select {
		case uiEvents <- ev:
		default:
			logger.Debug("dropped toast, board is not keeping up", "title", ev.Title)
		}
	}))
	defer closeSinks()
	fan.Start(eng.Events())
	go func() {
		<-fan.Done()
		close(uiEvents)
	}()

	if err := eng.Start(cmd.Context()); err != nil {
		<-fan.Done()
		return withHint(err)
	}

	res := eng.Devices()
	uiErr := tui.Run(tui.Options{
		UI:      c.UI,
		Trigger: eng,
		Library: library.New(c, logger),
		Events:  uiEvents,
		Devices: fmt.Sprintf("%s → %s", res.Input.Name, res.Cable.Name),
	})

	shutdownErr := eng.Shutdown()
	<-fan.Done()
	return errors.Join(uiErr, shutdownErr)
}

// newEngine creates an engine on the system audio backend. The returned
// func releases the clip source.
func newEngine(c *config.Config) (*engine.Engine, func(), error) {
	sys, err := audio.NewSystem(logger)
	if err != nil {
		return nil, nil, withHint(model.NewError(model.KindDeviceEnumeration, "initialize audio", err))
	}

	source, closeSource := newClipSource(c)
	return engine.New(c.Engine(), sys, source, logger), closeSource, nil
}

// newClipSource returns the decoder, wrapped in a watched cache when
// caching is enabled.
func newClipSource(c *config.Config) (decode.Source, func()) {
	decoder := decode.Decoder{}
	if !c.Library.Cache {
		return decoder, func() {}
	}

	cache := decode.NewCache(decoder, logger)
	if c.Library.Watch {
		if err := cache.Watch(c.Library.Path); err != nil {
			logger.Warn("failed to watch sound directory", "dir", c.Library.Path, "error", err)
		}
	}
	return cache, func() {
		if err := cache.Close(); err != nil {
			logger.Warn("failed to close clip cache", "error", err)
		}
	}
}

// newFanout creates the event fanout: the log, the event history and
// desktop notifications when enabled, plus any extra sinks. The returned
// func releases the history file and the bus connection. It must only be
// called once the fanout is done.
func newFanout(c *config.Config, extra ...notify.Sink) (*notify.Fanout, func()) {
	fan := notify.NewFanout(notify.NewLogSink(logger))
	for _, s := range extra {
		fan.Add(s)
	}

	var closers []io.Closer
	if c.History.Enabled {
		history, err := store.OpenHistory(config.HistoryPath(), c.History.MaxEntries, logger)
		if err != nil {
			logger.Warn("event history unavailable", "error", err)
		} else {
			fan.Add(history)
			closers = append(closers, history)
		}
	}

	if c.Notifications.Desktop {
		bus, err := notify.NewBusSender()
		if err != nil {
			logger.Warn("desktop notifications unavailable", "error", err)
		} else {
			fan.Add(notify.NewDesktop(bus, c.Notifications.MinInterval.Duration(), logger))
			closers = append(closers, bus)
		}
	}

	return fan, func() {
		for _, cl := range closers {
			if err := cl.Close(); err != nil {
				logger.Debug("failed to close event sink", "error", err)
			}
		}
	}
}

// withHint appends the user-actionable suggestion of an engine error.
func withHint(err error) error {
	var e *model.Error
	if errors.As(err, &e) {
		if hint := e.Hint(); hint != "" {
			return fmt.Errorf("%w (%s)", err, hint)
		}
	}
	return err
}
