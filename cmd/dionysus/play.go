package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/dionysus/internal/library"
	"github.com/jmylchreest/dionysus/internal/model"
)

var playCmd = &cobra.Command{
	Use:   "play <sound>...",
	Short: "Play sounds without the soundboard",
	Long: `Play one or more sounds through the speakers and the virtual cable, then exit.

A sound is a file path, the label text or file name of a sound in the
sound directory, or a line printed by 'dionysus sounds --format dmenu'.
Use - to read sounds from stdin, one per line.

Sounds play one after another. The command returns once the last one has
finished on both devices.

Examples:
  # Play a file
  dionysus play ~/Music/airhorn.mp3

  # Play by label
  dionysus play "Air Horn"

  # Pick with fuzzel
  dionysus sounds -f dmenu | fuzzel -d | dionysus play -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	c := getConfig()

	selections, err := expandStdin(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	// A missing sound directory only matters for label lookups.
	sounds, err := library.New(c, logger).Scan()
	if err != nil {
		logger.Debug("sound directory unavailable", "error", err)
	}

	var paths []string
	for _, sel := range selections {
		path, err := resolveSound(sel, sounds)
		if err != nil {
			return err
		}
		paths = append(paths, path)
	}

	eng, closeSource, err := newEngine(c)
	if err != nil {
		return err
	}
	defer closeSource()

	fan, closeSinks := newFanout(c)
	defer closeSinks()
	fan.Start(eng.Events())

	if err := eng.Start(cmd.Context()); err != nil {
		<-fan.Done()
		return withHint(err)
	}

	var triggerErr error
	for _, path := range paths {
		if err := eng.Trigger(path); err != nil {
			triggerErr = errors.Join(triggerErr, withHint(err))
		}
	}

	// Shutdown waits until both queues have played everything.
	shutdownErr := eng.Shutdown()
	<-fan.Done()
	return errors.Join(triggerErr, shutdownErr)
}

// expandStdin replaces a "-" argument with the non-empty lines of r.
func expandStdin(args []string, r io.Reader) ([]string, error) {
	var out []string
	for _, arg := range args {
		if arg != "-" {
			out = append(out, arg)
			continue
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				out = append(out, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	}
	return out, nil
}

// resolveSound turns a selection into a file path. Existing files win, then
// dmenu lines (the path is the last field), then library labels and file
// names, compared case-insensitively.
func resolveSound(selection string, sounds []model.Sound) (string, error) {
	selection = strings.TrimSpace(selection)

	if isFile(selection) {
		return selection, nil
	}

	if i := strings.LastIndex(selection, "|"); i >= 0 {
		if path := strings.TrimSpace(selection[i+1:]); isFile(path) {
			return path, nil
		}
	}

	for _, s := range sounds {
		stem := strings.TrimSuffix(s.FileName(), filepath.Ext(s.Path))
		if strings.EqualFold(s.Text, selection) ||
			strings.EqualFold(s.FileName(), selection) ||
			strings.EqualFold(stem, selection) {
			return s.Path, nil
		}
	}

	return "", fmt.Errorf("no sound matches %q", selection)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
