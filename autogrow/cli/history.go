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

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"watering-history"},
		Short:   "Manage the watering history",
	}
	cmd.AddCommand(
		newHistoryListCommand(opts),
		newHistoryGetCommand(opts),
		newHistoryCreateCommand(opts),
		newHistoryEndCommand(opts),
		newHistoryDeleteCommand(opts),
	)
	return cmd
}

func printHistory(out io.Writer, loc *time.Location, records []api.WateringHistoryRecord) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEVICE\tDURATION\tTYPE\tSTARTED\tENDED\tSTATUS")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			format.OrUnknown(r.DeviceID),
			format.WateringDuration(r.WateringDuration),
			format.WateringType(r.AutoWatering),
			format.DateTime(r.WateringStarted.Time, loc),
			format.EndTime(r.WateringEnded, loc),
			format.WateringStatus(r.WateringEnded),
		)
	}
	w.Flush()
}

// parseTimeFlag accepts RFC 3339 or the API's zone-less form; empty means now
func parseTimeFlag(raw string) (api.Time, error) {
	if raw == "" {
		return api.NewTime(time.Now().UTC()), nil
	}
	t, err := api.ParseTime(raw)
	if err != nil {
		return api.Time{}, err
	}
	return api.NewTime(t), nil
}

func newHistoryListCommand(opts *rootOptions) *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List irrigation cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, loc, err := opts.client()
			if err != nil {
				return err
			}
			records, err := client.ListWateringHistory(cmd.Context(), deviceID)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), loc, records)
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "Only cycles of this device")
	return cmd
}

func newHistoryGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one irrigation cycle",
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
			record, err := client.GetWateringHistory(cmd.Context(), id)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), loc, []api.WateringHistoryRecord{*record})
			return nil
		},
	}
}

func newHistoryCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		deviceID       string
		duration       int
		auto           bool
		started, ended string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record an irrigation cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startedAt, err := parseTimeFlag(started)
			if err != nil {
				return fmt.Errorf("invalid --started: %w", err)
			}
			in := api.WateringHistoryInput{
				DeviceID:         deviceID,
				WateringDuration: duration,
				AutoWatering:     auto,
				WateringStarted:  startedAt,
			}
			if ended != "" {
				endedAt, err := parseTimeFlag(ended)
				if err != nil {
					return fmt.Errorf("invalid --ended: %w", err)
				}
				in.WateringEnded = &endedAt
			}

			client, loc, err := opts.client()
			if err != nil {
				return err
			}
			record, err := client.CreateWateringHistory(cmd.Context(), in)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), loc, []api.WateringHistoryRecord{*record})
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "autogrow_esp32", "Device id")
	cmd.Flags().IntVar(&duration, "duration", 0, "Duration in seconds")
	cmd.Flags().BoolVar(&auto, "auto", false, "Started by the automatic schedule")
	cmd.Flags().StringVar(&started, "started", "", "Start time (default now)")
	cmd.Flags().StringVar(&ended, "ended", "", "End time (leave empty while running)")
	return cmd
}

func newHistoryEndCommand(opts *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "end ID",
		Short: "Mark an irrigation cycle as finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			endedAt, err := parseTimeFlag(at)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}

			client, loc, err := opts.client()
			if err != nil {
				return err
			}
			record, err := client.UpdateWateringHistory(cmd.Context(), id, api.WateringHistoryUpdate{WateringEnded: &endedAt})
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), loc, []api.WateringHistoryRecord{*record})
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "End time (default now)")
	return cmd
}

func newHistoryDeleteCommand(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an irrigation cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete watering record #%d?", id))
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
			if err := client.DeleteWateringHistory(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete watering history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted watering record #%d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
