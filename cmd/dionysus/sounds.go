package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/dionysus/internal/library"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/output"
)

var soundsOpts struct {
	format   string
	template string
	label    string
	noIndex  bool
}

var soundsCmd = &cobra.Command{
	Use:   "sounds",
	Short: "List the sounds in the sound directory",
	Long: `List the playable sounds of the sound directory with their labels.

Labels come from the [sounds] table of the config file, keyed by file name.
Files without an entry use their name and the default emoji.

The dmenu format prints the file path last so a selection can be passed
straight to 'dionysus play -'.`,
	RunE: runSounds,
}

func init() {
	rootCmd.AddCommand(soundsCmd)

	soundsCmd.Flags().StringVarP(&soundsOpts.format, "format", "f", "plain",
		"Output format (plain, json, yaml, dmenu)")
	soundsCmd.Flags().StringVar(&soundsOpts.template, "template", "",
		"Custom Go template for output formatting")
	soundsCmd.Flags().StringVar(&soundsOpts.label, "label", "both",
		"Label style (both, emoji, text)")
	soundsCmd.Flags().BoolVar(&soundsOpts.noIndex, "no-index", false,
		"Omit the index prefix")
}

func runSounds(cmd *cobra.Command, args []string) error {
	sounds, err := library.New(getConfig(), logger).Scan()
	if err != nil {
		return err
	}

	opts := output.DefaultFormatterOptions()
	opts.Template = soundsOpts.template
	opts.ShowIndex = !soundsOpts.noIndex
	opts.LabelMode = labelMode(soundsOpts.label)

	return output.NewFormatter(output.FormatType(soundsOpts.format), opts).Sounds(os.Stdout, sounds)
}

func labelMode(name string) int {
	switch name {
	case "emoji":
		return model.LabelEmoji
	case "text":
		return model.LabelText
	default:
		return model.LabelBoth
	}
}
