package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/format"
)

func newWateringCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watering",
		Short: "Inspect or switch the pump",
	}
	cmd.AddCommand(newWateringGetCommand(opts), newWateringSetCommand(opts))
	return cmd
}

func printWatering(cmd *cobra.Command, event *api.WateringEvent) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Device:        %s\n", format.OrUnknown(event.DeviceID))
	fmt.Fprintf(out, "Pump:          %s\n", format.PumpStatus(event.PumpActive, nil))
	fmt.Fprintf(out, "Mode:          %s\n", format.WateringType(event.AutoWatering))
	fmt.Fprintf(out, "Duration:      %s\n", format.WateringDuration(event.WateringDuration))
	fmt.Fprintf(out, "Last watering: %s\n", format.LastWatering(event.LastWatering, time.Now()))
}

func newWateringGetCommand(opts *rootOptions) *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the pump state of a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := opts.client()
			if err != nil {
				return err
			}
			event, err := client.GetWatering(cmd.Context(), deviceID)
			if err != nil {
				return err
			}
			printWatering(cmd, event)
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "autogrow_esp32", "Device id")
	return cmd
}

func newWateringSetCommand(opts *rootOptions) *cobra.Command {
	var (
		deviceID string
		duration int
		auto     bool
	)
	cmd := &cobra.Command{
		Use:       "set on|off",
		Short:     "Switch the pump on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var active bool
			switch strings.ToLower(args[0]) {
			case "on":
				active = true
			case "off":
				active = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			upd := api.WateringUpdate{DeviceID: &deviceID, PumpActive: &active}
			if cmd.Flags().Changed("duration") {
				upd.WateringDuration = &duration
			}
			if cmd.Flags().Changed("auto") {
				upd.AutoWatering = &auto
			}

			client, _, err := opts.client()
			if err != nil {
				return err
			}
			event, err := client.UpdateWatering(cmd.Context(), upd)
			if err != nil {
				return err
			}
			printWatering(cmd, event)
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "autogrow_esp32", "Device id")
	cmd.Flags().IntVar(&duration, "duration", 0, "Watering duration in seconds")
	cmd.Flags().BoolVar(&auto, "auto", false, "Automatic watering mode")
	return cmd
}
