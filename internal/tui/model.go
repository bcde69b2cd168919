// Package tui provides the BubbleTea-based soundboard.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/model"
)

const (
	maxToasts     = 3
	toastLifetime = 6 * time.Second
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeBoard Mode = iota
	ModeHelp
)

// Triggerer plays a sound file.
type Triggerer interface {
	Trigger(path string) error
}

// Scanner lists the sound library.
type Scanner interface {
	Scan() ([]model.Sound, error)
	Dir() string
}

// Model is the main TUI model.
type Model struct {
	// Configuration
	ui      config.UIConfig
	trigger Triggerer
	library Scanner
	events  <-chan model.Event
	devices string

	// Current mode
	mode Mode

	// Components
	list list.Model
	help help.Model

	// State
	sounds    []model.Sound
	labelMode int
	showClock bool
	toasts    []toast
	stopped   bool
	now       time.Time
	width     int
	height    int
	ready     bool

	// Key bindings
	keys KeyMap

	// Status message
	statusMsg string
	statusErr bool
}

// toast is an engine event shown above the key bar.
type toast struct {
	event model.Event
	until time.Time
}

// soundItem wraps a sound for the list component.
type soundItem struct {
	sound model.Sound
	mode  int
}

func (i soundItem) Title() string {
	return i.sound.Label(i.mode)
}

func (i soundItem) Description() string {
	return fmt.Sprintf("%s · %s", i.sound.FileName(), humanize.Bytes(uint64(max(i.sound.Size, 0))))
}

func (i soundItem) FilterValue() string {
	return i.sound.Text + " " + i.sound.FileName()
}

// Options configures the TUI model.
type Options struct {
	UI      config.UIConfig
	Trigger Triggerer
	Library Scanner
	Events  <-chan model.Event
	// Devices is shown in the header, e.g. "Mic → CABLE Input".
	Devices string
}

// New creates a new TUI model.
func New(opts Options) Model {
	l := list.New(nil, newSoundDelegate(model.LabelBoth), 0, 0)
	l.Title = "Dionysus"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.SetStatusBarItemName("sound", "sounds")
	l.DisableQuitKeybindings()

	return Model{
		ui:        opts.UI,
		trigger:   opts.Trigger,
		library:   opts.Library,
		events:    opts.Events,
		devices:   opts.Devices,
		mode:      ModeBoard,
		list:      l,
		help:      help.New(),
		labelMode: model.LabelBoth,
		showClock: opts.UI.ShowClock,
		now:       time.Now(),
		keys:      DefaultKeyMap(),
	}
}

func newSoundDelegate(mode int) list.DefaultDelegate {
	d := list.NewDefaultDelegate()
	d.ShowDescription = mode != model.LabelEmoji
	if !d.ShowDescription {
		d.SetSpacing(0)
	}
	return d
}

// Init initializes the TUI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadSounds,
		m.waitForEvent,
		tick(),
	)
}

type soundsMsg struct {
	sounds []model.Sound
	err    error
}

type eventMsg struct {
	event model.Event
}

type eventsClosedMsg struct{}

type triggeredMsg struct {
	sound model.Sound
	err   error
}

type tickMsg time.Time

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

// loadSounds scans the sound library.
func (m Model) loadSounds() tea.Msg {
	if m.library == nil {
		return soundsMsg{}
	}
	sounds, err := m.library.Scan()
	return soundsMsg{sounds: sounds, err: err}
}

// waitForEvent waits for the next engine event.
func (m Model) waitForEvent() tea.Msg {
	if m.events == nil {
		return nil
	}
	ev, ok := <-m.events
	if !ok {
		return eventsClosedMsg{}
	}
	return eventMsg{event: ev}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// play triggers s. Decoding happens in the command so the UI stays
// responsive.
func (m Model) play(s model.Sound) tea.Cmd {
	trigger := m.trigger
	return func() tea.Msg {
		if trigger == nil {
			return triggeredMsg{sound: s, err: errors.New("no engine")}
		}
		return triggeredMsg{sound: s, err: trigger.Trigger(s.Path)}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.list.SetSize(msg.Width, m.listHeight())
		return m, nil

	case soundsMsg:
		if msg.err != nil {
			m.sounds = nil
			m.list.SetItems(nil)
			return m, setStatus("Cannot load sounds: "+msg.err.Error(), true)
		}
		m.sounds = msg.sounds
		m.list.SetItems(m.buildListItems())
		return m, setStatus(fmt.Sprintf("Loaded %d sounds", len(m.sounds)), false)

	case eventMsg:
		m.toasts = append(m.toasts, toast{event: msg.event, until: m.now.Add(toastLifetime)})
		if len(m.toasts) > maxToasts {
			m.toasts = m.toasts[len(m.toasts)-maxToasts:]
		}
		m.list.SetSize(m.width, m.listHeight())
		return m, m.waitForEvent

	case eventsClosedMsg:
		m.stopped = true
		return m, nil

	case triggeredMsg:
		if msg.err != nil {
			if model.KindOf(msg.err) == model.KindDecode {
				// Reported through the event channel.
				return m, nil
			}
			return m, setStatus("Cannot play "+msg.sound.Text+": "+msg.err.Error(), true)
		}
		return m, setStatus("Playing "+msg.sound.Label(model.LabelBoth), false)

	case tickMsg:
		m.now = time.Time(msg)
		m.expireToasts()
		m.list.SetSize(m.width, m.listHeight())
		return m, tick()

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func setStatus(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: text, isErr: isErr}
	}
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While typing a filter every key belongs to the list.
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeHelp {
			m.mode = ModeBoard
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	if m.mode == ModeHelp {
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeBoard
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Play):
		if item, ok := m.list.SelectedItem().(soundItem); ok {
			if m.stopped {
				return m, setStatus("Audio engine is stopped", true)
			}
			return m, m.play(item.sound)
		}
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		m.labelMode = model.NextLabelMode(m.labelMode)
		m.list.SetDelegate(newSoundDelegate(m.labelMode))
		m.list.SetItems(m.buildListItems())
		return m, nil

	case key.Matches(msg, m.keys.Reload):
		return m, m.loadSounds

	case key.Matches(msg, m.keys.Clock):
		m.showClock = !m.showClock
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// buildListItems wraps the sounds for the list in the current label mode.
func (m Model) buildListItems() []list.Item {
	items := make([]list.Item, len(m.sounds))
	for i, s := range m.sounds {
		items[i] = soundItem{sound: s, mode: m.labelMode}
	}
	return items
}

func (m *Model) expireToasts() {
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if m.now.Before(t.until) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// listHeight leaves room for the header, the toasts and the key bar.
func (m Model) listHeight() int {
	return max(m.height-2-len(m.toasts), 0)
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeHelp:
		return m.viewHelp()
	default:
		return m.viewBoard()
	}
}

func (m Model) viewBoard() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.list.View())

	for _, t := range m.toasts {
		b.WriteString("\n")
		b.WriteString(m.renderToast(t))
	}

	b.WriteString("\n")
	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		b.WriteString(statusStyle.Render(m.statusMsg))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}

func (m Model) viewHeader() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))
	dimStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	left := headerStyle.Render("Soundboard")
	if m.devices != "" {
		left += dimStyle.Render("  " + m.devices)
	}
	if m.stopped {
		left += lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("  [engine stopped]")
	}
	if !m.showClock {
		return left
	}

	clock := dimStyle.Render(m.now.Format("15:04:05"))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(clock)
	if gap < 1 {
		return left + " " + clock
	}
	return left + strings.Repeat(" ", gap) + clock
}

func (m Model) renderToast(t toast) string {
	color := lipgloss.Color("11")
	if t.event.Severity() == model.SeverityError {
		color = lipgloss.Color("9")
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(color)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	line := titleStyle.Render(t.event.Title) + " " + t.event.Message +
		dimStyle.Render(" ("+humanize.RelTime(t.event.Time, m.now, "ago", "from now")+")")
	if m.width > 0 {
		line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
	}
	return line
}

func (m Model) viewHelp() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	dir := "the audio directory"
	if m.library != nil {
		dir = m.library.Dir()
	}

	s := titleStyle.Render("Dionysus Help") + "\n\n"

	s += sectionStyle.Render("Keys") + "\n"
	s += keyStyle.Render("  enter/space") + "  Play the selected sound\n"
	s += keyStyle.Render("  t") + "            Cycle labels: emoji and text, emoji, text\n"
	s += keyStyle.Render("  r") + "            Reload the sound library\n"
	s += keyStyle.Render("  c") + "            Toggle the clock\n"
	s += keyStyle.Render("  /") + "            Filter sounds\n"
	s += keyStyle.Render("  ?/h") + "          Toggle this help\n"
	s += keyStyle.Render("  q") + "            Quit\n"
	s += "\n"

	s += sectionStyle.Render("How do I add sounds?") + "\n"
	s += "  Put .mp3, .wav, .ogg or .flac files in " + dir + " and press r.\n\n"

	s += sectionStyle.Render("How do I change a label or emoji?") + "\n"
	s += "  Add a [sounds.\"file.mp3\"] table with text and emoji to " + config.ConfigPath() + ".\n\n"

	s += sectionStyle.Render("Where does the sound go?") + "\n"
	s += "  To your speakers and to the virtual cable, together with your microphone.\n"

	s += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		"Press ? or esc to return")

	return s
}

// Run starts the TUI and blocks until the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
