package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Fatal(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{KindUnknown, false},
		{KindDeviceEnumeration, true},
		{KindDeviceResolution, true},
		{KindStreamOpen, true},
		{KindDecode, false},
		{KindPlayback, false},
		{KindStreamFault, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.kind.Fatal())
		})
	}
}

func TestError_Message(t *testing.T) {
	err := NewError(KindPlayback, "render", ErrDeviceStopped).WithDevice("Speakers").WithPath("a.wav")
	assert.Equal(t, `playback: render [device "Speakers"] [file "a.wav"]: device stopped unexpectedly`, err.Error())
	assert.ErrorIs(t, err, ErrDeviceStopped)
}

func TestError_WithDoesNotMutate(t *testing.T) {
	base := NewError(KindDecode, "decode", ErrUnsupportedFormat)
	_ = base.WithPath("x.aac")
	assert.Empty(t, base.Path)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", NewError(KindStreamOpen, "open", errors.New("boom")))
	assert.Equal(t, KindStreamOpen, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestEventFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind EventKind
		sev  Severity
	}{
		{"enumeration", NewError(KindDeviceEnumeration, "enumerate", errors.New("x")), EventFatalStartup, SeverityError},
		{"resolution", NewError(KindDeviceResolution, "resolve", ErrCableNotFound), EventFatalStartup, SeverityError},
		{"stream_open", NewError(KindStreamOpen, "open", errors.New("x")), EventFatalStartup, SeverityError},
		{"decode", NewError(KindDecode, "decode", ErrUnsupportedFormat), EventDecode, SeverityWarning},
		{"playback", NewError(KindPlayback, "render", ErrDeviceStopped), EventPlayback, SeverityWarning},
		{"stream_fault", NewError(KindStreamFault, "loopback", ErrDeviceStopped), EventStreamFault, SeverityError},
		{"foreign", errors.New("other"), EventPlayback, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := EventFromError(tt.err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.sev, ev.Severity())
			assert.NotEmpty(t, ev.Title)
			assert.Contains(t, ev.Message, tt.err.Error())
			assert.False(t, ev.Time.IsZero())

			_, err := ulid.Parse(ev.ID)
			require.NoError(t, err)
		})
	}
}

func TestEventFromError_CableHint(t *testing.T) {
	ev := EventFromError(NewError(KindDeviceResolution, "resolve", ErrCableNotFound))
	assert.Contains(t, ev.Message, "install/enable the virtual cable device")
}

func TestSound_Label(t *testing.T) {
	s := Sound{Path: "/tmp/Airhorn.MP3", Text: "Airhorn", Emoji: "📯"}

	assert.Equal(t, "📯 Airhorn", s.Label(LabelBoth))
	assert.Equal(t, "📯", s.Label(LabelEmoji))
	assert.Equal(t, "Airhorn", s.Label(LabelText))
	assert.Equal(t, ".mp3", s.Ext())
	assert.Equal(t, "Airhorn.MP3", s.FileName())

	noEmoji := Sound{Text: "plain"}
	assert.Equal(t, "plain", noEmoji.Label(LabelBoth))
	assert.Equal(t, "plain", noEmoji.Label(LabelEmoji))
}

func TestNextLabelMode(t *testing.T) {
	m := LabelBoth
	m = NextLabelMode(m)
	assert.Equal(t, LabelEmoji, m)
	m = NextLabelMode(m)
	assert.Equal(t, LabelText, m)
	m = NextLabelMode(m)
	assert.Equal(t, LabelBoth, m)
}
