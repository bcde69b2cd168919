package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/store"
)

var eventsOpts struct {
	format   string
	template string
	limit    int
	since    time.Duration
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recorded engine events",
	Long: `Show the engine events recorded in the event history, oldest first.

Every failure the soundboard reports (a sound that cannot be decoded, a
device that stopped, a setup failure) is recorded while [history] is
enabled in the config file.

Examples:
  # The last five events
  dionysus events -n 5

  # Events of the last hour as JSON
  dionysus events --since 1h --format json`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVarP(&eventsOpts.format, "format", "f", "plain",
		"Output format (plain, json, yaml, dmenu)")
	eventsCmd.Flags().StringVar(&eventsOpts.template, "template", "",
		"Custom Go template for output formatting")
	eventsCmd.Flags().IntVarP(&eventsOpts.limit, "limit", "n", 0,
		"Show only the newest n events (0=all)")
	eventsCmd.Flags().DurationVar(&eventsOpts.since, "since", 0,
		"Show events from the last duration (e.g., 30m, 2h)")
}

func runEvents(cmd *cobra.Command, args []string) error {
	history, err := store.OpenHistory(config.HistoryPath(), 0, logger)
	if err != nil {
		return fmt.Errorf("failed to open event history: %w", err)
	}
	defer history.Close()

	events, err := history.Load()
	if err != nil {
		return err
	}

	events = filterEvents(events, time.Now(), eventsOpts.since, eventsOpts.limit)
	return createFormatter(eventsOpts.format, eventsOpts.template).Events(os.Stdout, events)
}

// filterEvents keeps events newer than since, then the newest limit of
// them. Zero disables either filter.
func filterEvents(events []model.Event, now time.Time, since time.Duration, limit int) []model.Event {
	if since > 0 {
		cutoff := now.Add(-since)
		kept := events[:0:0]
		for _, ev := range events {
			if ev.Time.After(cutoff) {
				kept = append(kept, ev)
			}
		}
		events = kept
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}
