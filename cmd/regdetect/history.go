package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the adaptive detection history",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded detections, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, closeHistory, err := a.openHistory()
			if err != nil {
				return err
			}
			defer closeHistory()

			recs, err := history.Records(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, closeHistory, err := a.openHistory()
			if err != nil {
				return err
			}
			defer closeHistory()
			if err := history.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}

	var reject bool
	confirmCmd := &cobra.Command{
		Use:   "confirm <url_pattern>",
		Short: "Mark the latest record for a URL pattern as confirmed (or rejected with --reject)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, closeHistory, err := a.openHistory()
			if err != nil {
				return err
			}
			defer closeHistory()
			if err := history.Confirm(cmd.Context(), args[0], !reject); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s confirmed=%v\n", args[0], !reject)
			return nil
		},
	}
	confirmCmd.Flags().BoolVar(&reject, "reject", false, "record that the page is not a registration form")

	cmd.AddCommand(listCmd, clearCmd, confirmCmd)
	return cmd
}
