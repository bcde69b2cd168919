package tui

import (
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/model"
)

type fakeTrigger struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeTrigger) Trigger(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.err
}

type fakeLibrary struct {
	sounds []model.Sound
	err    error
	scans  int
}

func (f *fakeLibrary) Scan() ([]model.Sound, error) {
	f.scans++
	return f.sounds, f.err
}

func (f *fakeLibrary) Dir() string { return "/sounds" }

func testSounds() []model.Sound {
	return []model.Sound{
		{Path: "/sounds/airhorn.mp3", Text: "Air Horn", Emoji: "📯", Size: 2048},
		{Path: "/sounds/bruh.wav", Text: "bruh", Emoji: "🔊", Size: 1024},
	}
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func loadedModel(t *testing.T, trig *fakeTrigger, lib *fakeLibrary) Model {
	t.Helper()
	m := New(Options{UI: config.UIConfig{DefaultEmoji: "🔊"}, Trigger: trig, Library: lib})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, m.loadSounds())
	return m
}

func TestModel_LoadsSounds(t *testing.T) {
	lib := &fakeLibrary{sounds: testSounds()}
	m := loadedModel(t, &fakeTrigger{}, lib)

	assert.Equal(t, 1, lib.scans)
	assert.Len(t, m.list.Items(), 2)
	assert.Contains(t, m.View(), "Air Horn")
}

func TestModel_LoadFailureShowsStatus(t *testing.T) {
	lib := &fakeLibrary{err: errors.New("audio directory does not exist")}
	m := loadedModel(t, &fakeTrigger{}, lib)
	assert.Empty(t, m.list.Items())

	_, cmd := update(t, New(Options{Library: lib}), m.loadSounds())
	require.NotNil(t, cmd)
	status, ok := cmd().(statusMsg)
	require.True(t, ok)
	assert.True(t, status.isErr)
	assert.Contains(t, status.text, "audio directory does not exist")
}

func TestModel_PlayTriggersSelectedSound(t *testing.T) {
	trig := &fakeTrigger{}
	m := loadedModel(t, trig, &fakeLibrary{sounds: testSounds()})

	m, cmd := update(t, m, keyPress("enter"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, []string{"/sounds/airhorn.mp3"}, trig.paths)

	_, cmd = update(t, m, msg)
	require.NotNil(t, cmd)
	status, ok := cmd().(statusMsg)
	require.True(t, ok)
	assert.False(t, status.isErr)
	assert.Contains(t, status.text, "Air Horn")
}

func TestModel_DecodeFailureIsLeftToEvents(t *testing.T) {
	trig := &fakeTrigger{err: model.NewError(model.KindDecode, "decode clip", errors.New("bad header"))}
	m := loadedModel(t, trig, &fakeLibrary{sounds: testSounds()})

	_, cmd := update(t, m, keyPress("enter"))
	require.NotNil(t, cmd)

	_, cmd = update(t, m, cmd())
	assert.Nil(t, cmd)
}

func TestModel_ToggleCyclesLabelModes(t *testing.T) {
	m := loadedModel(t, &fakeTrigger{}, &fakeLibrary{sounds: testSounds()})

	title := func(m Model) string {
		return m.list.Items()[0].(soundItem).Title()
	}

	assert.Equal(t, "📯 Air Horn", title(m))
	m, _ = update(t, m, keyPress("t"))
	assert.Equal(t, "📯", title(m))
	m, _ = update(t, m, keyPress("t"))
	assert.Equal(t, "Air Horn", title(m))
	m, _ = update(t, m, keyPress("t"))
	assert.Equal(t, "📯 Air Horn", title(m))
}

func TestModel_ReloadRescans(t *testing.T) {
	lib := &fakeLibrary{sounds: testSounds()}
	m := loadedModel(t, &fakeTrigger{}, lib)

	lib.sounds = lib.sounds[:1]
	m, cmd := update(t, m, keyPress("r"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, 2, lib.scans)
	assert.Len(t, m.list.Items(), 1)
}

func TestModel_HelpAndQuit(t *testing.T) {
	m := loadedModel(t, &fakeTrigger{}, &fakeLibrary{sounds: testSounds()})

	m, _ = update(t, m, keyPress("?"))
	assert.Equal(t, ModeHelp, m.mode)
	assert.Contains(t, m.View(), "/sounds")

	m, _ = update(t, m, keyPress("esc"))
	assert.Equal(t, ModeBoard, m.mode)

	_, cmd := update(t, m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_EventsBecomeToasts(t *testing.T) {
	events := make(chan model.Event, 8)
	m := New(Options{Events: events, Library: &fakeLibrary{}})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 24})

	for i := range 5 {
		events <- model.Event{
			ID:      model.NewID(),
			Kind:    model.EventDecode,
			Title:   "Cannot read sound",
			Message: string(rune('a' + i)),
			Time:    m.now,
		}
	}
	close(events)

	for range 5 {
		var cmd tea.Cmd
		m, cmd = update(t, m, m.waitForEvent())
		require.NotNil(t, cmd)
	}
	require.Len(t, m.toasts, maxToasts)
	assert.Equal(t, "e", m.toasts[maxToasts-1].event.Message)
	assert.Contains(t, m.View(), "Cannot read sound")

	m, _ = update(t, m, m.waitForEvent())
	assert.True(t, m.stopped)
	assert.Contains(t, m.View(), "engine stopped")

	m, _ = update(t, m, tickMsg(m.now.Add(toastLifetime+time.Second)))
	assert.Empty(t, m.toasts)
}

func TestModel_PlayAfterEngineStopped(t *testing.T) {
	trig := &fakeTrigger{}
	m := loadedModel(t, trig, &fakeLibrary{sounds: testSounds()})
	m, _ = update(t, m, eventsClosedMsg{})

	_, cmd := update(t, m, keyPress("enter"))
	require.NotNil(t, cmd)
	status, ok := cmd().(statusMsg)
	require.True(t, ok)
	assert.True(t, status.isErr)
	assert.Empty(t, trig.paths)
}

func TestModel_Clock(t *testing.T) {
	m := loadedModel(t, &fakeTrigger{}, &fakeLibrary{sounds: testSounds()})
	now := time.Date(2026, 3, 4, 13, 14, 15, 0, time.UTC)
	m, _ = update(t, m, tickMsg(now))

	assert.NotContains(t, m.View(), "13:14:15")
	m, _ = update(t, m, keyPress("c"))
	assert.Contains(t, m.View(), "13:14:15")
}
