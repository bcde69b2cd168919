package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/dionysus/internal/audio"
	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/output"
)

var devicesOpts struct {
	format   string
	template string
	resolved bool
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	Long: `List the audio input and output devices.

With --resolved, only the microphone, speakers and virtual cable that the
soundboard would use are listed, in that order. This fails the same way
the soundboard would if a device is missing.

Examples:
  # List all devices
  dionysus devices

  # Show what the soundboard will use
  dionysus devices --resolved

  # Device names only
  dionysus devices --template '{{.Device.Name}}{{"\n"}}'`,
	RunE: runDevices,
}

var selectOpts struct {
	input  string
	output string
	cable  string
}

var devicesSelectCmd = &cobra.Command{
	Use:   "select",
	Short: "Choose the devices the soundboard uses",
	Long: `Save the input, output and virtual cable device names to the config file.

Only the flags given are changed. Pass an empty value to go back to the
system default input or output. Names must match 'dionysus devices'.`,
	RunE: runDevicesSelect,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(devicesSelectCmd)

	devicesCmd.Flags().StringVarP(&devicesOpts.format, "format", "f", "plain",
		"Output format (plain, json, yaml, dmenu)")
	devicesCmd.Flags().StringVar(&devicesOpts.template, "template", "",
		"Custom Go template for output formatting")
	devicesCmd.Flags().BoolVar(&devicesOpts.resolved, "resolved", false,
		"Show only the devices the soundboard would use")

	devicesSelectCmd.Flags().StringVar(&selectOpts.input, "input", "",
		"Microphone device name (empty for the system default)")
	devicesSelectCmd.Flags().StringVar(&selectOpts.output, "output", "",
		"Speaker device name (empty for the system default)")
	devicesSelectCmd.Flags().StringVar(&selectOpts.cable, "cable", "",
		"Virtual cable output device name")
}

func runDevices(cmd *cobra.Command, args []string) error {
	sys, err := audio.NewSystem(logger)
	if err != nil {
		return withHint(model.NewError(model.KindDeviceEnumeration, "initialize audio", err))
	}
	defer func() {
		if err := sys.Close(); err != nil {
			logger.Warn("failed to close audio system", "error", err)
		}
	}()

	catalog := device.NewCatalog(sys, getConfig().Engine(), logger)

	var devices []device.AudioDevice
	if devicesOpts.resolved {
		res, err := catalog.Resolve()
		if err != nil {
			return withHint(err)
		}
		devices = []device.AudioDevice{res.Input, res.Output, res.Cable}
	} else {
		snap, err := catalog.Snapshot()
		if err != nil {
			return withHint(err)
		}
		devices = snap.Devices()
	}

	return createFormatter(devicesOpts.format, devicesOpts.template).Devices(os.Stdout, devices)
}

func runDevicesSelect(cmd *cobra.Command, args []string) error {
	var input, out, cable *string
	if cmd.Flags().Changed("input") {
		input = &selectOpts.input
	}
	if cmd.Flags().Changed("output") {
		out = &selectOpts.output
	}
	if cmd.Flags().Changed("cable") {
		cable = &selectOpts.cable
	}
	if input == nil && out == nil && cable == nil {
		return errors.New("nothing to select, pass --input, --output or --cable")
	}

	c, err := config.SelectDevices(globalOpts.configPath, input, out, cable)
	if err != nil {
		return err
	}

	path := globalOpts.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "input:  %s\noutput: %s\ncable:  %s\nsaved to %s\n",
		orDefault(c.Devices.Input), orDefault(c.Devices.Output), c.Devices.Cable, path)
	return nil
}

func orDefault(name string) string {
	if name == "" {
		return "(system default)"
	}
	return name
}

// createFormatter creates the output formatter for a --format value.
func createFormatter(format, tmpl string) output.Formatter {
	opts := output.DefaultFormatterOptions()
	opts.Template = tmpl
	return output.NewFormatter(output.FormatType(strings.ToLower(format)), opts)
}
