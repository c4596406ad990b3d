package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/format"
)

func newSensorsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sensors",
		Aliases: []string{"sensor"},
		Short:   "Manage sensor readings",
	}
	cmd.AddCommand(
		newSensorsListCommand(opts),
		newSensorsGetCommand(opts),
		newSensorsCreateCommand(opts),
		newSensorsUpdateCommand(opts),
		newSensorsDeleteCommand(opts),
	)
	return cmd
}

func printSensors(out io.Writer, loc *time.Location, readings []api.SensorReading) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTEMPERATURE\tHUMIDITY\tLIGHT\tPUMP\tDEVICE\tFIRMWARE\tSENSOR\tCREATED")
	for _, r := range readings {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			format.Temperature(r.Temperature),
			format.Humidity(r.Humidity),
			format.Lux(r.Lux),
			format.PumpStatus(r.PumpActive, nil),
			format.OrUnknown(r.DeviceID),
			format.OrNA(r.FirmwareVersion),
			format.OrNA(r.SensorType),
			format.DateTime(r.CreatedAt.Time, loc),
		)
	}
	w.Flush()
}

func newSensorsListCommand(opts *rootOptions) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sensor readings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, loc, err := opts.client()
			if err != nil {
				return err
			}
			readings, err := client.ListSensors(cmd.Context(), query)
			if err != nil {
				return err
			}
			printSensors(cmd.OutOrStdout(), loc, readings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search text")
	return cmd
}

func newSensorsGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one sensor reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client, loc, err := opts.client()
			if err != nil {
				return err
			}
			reading, err := client.GetSensor(cmd.Context(), id)
			if err != nil {
				return err
			}
			printSensors(cmd.OutOrStdout(), loc, []api.SensorReading{*reading})
			return nil
		},
	}
}

func newSensorsCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		temperature, humidity, lux     float64
		pump                           bool
		deviceID, firmware, sensorType string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a sensor reading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := api.SensorReadingInput{
				PumpActive:      pump,
				Timestamp:       time.Now().UnixMilli(),
				DeviceID:        deviceID,
				FirmwareVersion: firmware,
				SensorType:      sensorType,
			}
			if cmd.Flags().Changed("temperature") {
				in.Temperature = &temperature
			}
			if cmd.Flags().Changed("humidity") {
				in.Humidity = &humidity
			}
			if cmd.Flags().Changed("lux") {
				in.Lux = &lux
			}
			if err := in.Validate(); err != nil {
				return err
			}

			client, loc, err := opts.client()
			if err != nil {
				return err
			}
			reading, err := client.CreateSensor(cmd.Context(), in)
			if err != nil {
				return err
			}
			printSensors(cmd.OutOrStdout(), loc, []api.SensorReading{*reading})
			return nil
		},
	}
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Temperature in °C (required)")
	cmd.Flags().Float64Var(&humidity, "humidity", 0, "Relative humidity in % (required)")
	cmd.Flags().Float64Var(&lux, "lux", 0, "Illuminance in lux (required)")
	cmd.Flags().BoolVar(&pump, "pump", false, "Pump running")
	cmd.Flags().StringVar(&deviceID, "device", "", "Device id")
	cmd.Flags().StringVar(&firmware, "firmware", "", "Firmware version")
	cmd.Flags().StringVar(&sensorType, "sensor-type", "", "Sensor type")
	return cmd
}

func newSensorsUpdateCommand(opts *rootOptions) *cobra.Command {
	var (
		temperature, humidity, lux     float64
		pump                           bool
		deviceID, firmware, sensorType string
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a sensor reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var upd api.SensorReadingUpdate
			flags := cmd.Flags()
			if flags.Changed("temperature") {
				upd.Temperature = &temperature
			}
			if flags.Changed("humidity") {
				upd.Humidity = &humidity
			}
			if flags.Changed("lux") {
				upd.Lux = &lux
			}
			if flags.Changed("pump") {
				upd.PumpActive = &pump
			}
			if flags.Changed("device") {
				upd.DeviceID = &deviceID
			}
			if flags.Changed("firmware") {
				upd.FirmwareVersion = &firmware
			}
			if flags.Changed("sensor-type") {
				upd.SensorType = &sensorType
			}

			client, loc, err := opts.client()
			if err != nil {
				return err
			}
			reading, err := client.UpdateSensor(cmd.Context(), id, upd)
			if err != nil {
				return err
			}
			printSensors(cmd.OutOrStdout(), loc, []api.SensorReading{*reading})
			return nil
		},
	}
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Temperature in °C")
	cmd.Flags().Float64Var(&humidity, "humidity", 0, "Relative humidity in %")
	cmd.Flags().Float64Var(&lux, "lux", 0, "Illuminance in lux")
	cmd.Flags().BoolVar(&pump, "pump", false, "Pump running")
	cmd.Flags().StringVar(&deviceID, "device", "", "Device id")
	cmd.Flags().StringVar(&firmware, "firmware", "", "Firmware version")
	cmd.Flags().StringVar(&sensorType, "sensor-type", "", "Sensor type")
	return cmd
}

func newSensorsDeleteCommand(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a sensor reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete sensor reading #%d?", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			client, _, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.DeleteSensor(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete sensor data: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted sensor reading #%d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
