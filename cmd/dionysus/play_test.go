package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/dionysus/internal/model"
)

func TestResolveSound(t *testing.T) {
	dir := t.TempDir()
	airhorn := filepath.Join(dir, "airhorn.mp3")
	bruh := filepath.Join(dir, "bruh.wav")
	for _, p := range []string{airhorn, bruh} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	sounds := []model.Sound{
		{Path: airhorn, Text: "Air Horn", Emoji: "📯"},
		{Path: bruh, Text: "bruh", Emoji: "🔊"},
	}

	tests := []struct {
		name      string
		selection string
		want      string
	}{
		{"path", airhorn, airhorn},
		{"dmenu line", "1 | 📯 Air Horn | " + airhorn, airhorn},
		{"label", "air horn", airhorn},
		{"file name", "BRUH.wav", bruh},
		{"stem", "airhorn", airhorn},
		{"surrounding space", "  bruh \n", bruh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSound(tt.selection, sounds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := resolveSound("kazoo", sounds)
	assert.ErrorContains(t, err, "kazoo")

	_, err = resolveSound(dir, nil)
	assert.Error(t, err, "directories are not sounds")
}

func TestExpandStdin(t *testing.T) {
	got, err := expandStdin([]string{"a", "-", "d"}, strings.NewReader("b\n\n  c  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)

	got, err = expandStdin([]string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestLabelMode(t *testing.T) {
	assert.Equal(t, model.LabelEmoji, labelMode("emoji"))
	assert.Equal(t, model.LabelText, labelMode("text"))
	assert.Equal(t, model.LabelBoth, labelMode("both"))
	assert.Equal(t, model.LabelBoth, labelMode(""))
}

func TestWithHint(t *testing.T) {
	err := withHint(model.NewError(model.KindDeviceResolution, "find virtual cable", model.ErrCableNotFound))
	assert.ErrorIs(t, err, model.ErrCableNotFound)
	assert.Contains(t, err.Error(), "install/enable the virtual cable device")

	plain := os.ErrNotExist
	assert.Equal(t, plain, withHint(plain))
}
