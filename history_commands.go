package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crycare/cry-pipeline/clients"
	"github.com/crycare/cry-pipeline/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or prune the prediction history",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Use a running server's history instead of the local file")

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []history.Entry
			var err error
			if serverURL != "" {
				entries, err = clients.NewHTTP().History(cmd.Context(), serverURL)
			} else {
				var store *history.Store
				if store, err = ctx.history(); err == nil {
					entries, err = store.List()
				}
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history entries")
				return nil
			}
			fmt.Fprintln(out, renderHistory(entries))
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if serverURL != "" {
				st, err := clients.NewHTTP().DeleteHistory(cmd.Context(), serverURL, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), st.Message)
				return nil
			}
			store, err := ctx.history()
			if err != nil {
				return err
			}
			if err := store.Delete(id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "History item %s deleted successfully\n", id)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every history entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL != "" {
				st, err := clients.NewHTTP().ClearHistory(cmd.Context(), serverURL)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), st.Message)
				return nil
			}
			store, err := ctx.history()
			if err != nil {
				return err
			}
			if err := store.DeleteAll(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All history items deleted successfully")
			return nil
		},
	}

	cmd.AddCommand(list, del, clearCmd)
	return cmd
}

func renderHistory(entries []history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID,
			e.Filename,
			e.Predictions.Overall,
			fmt.Sprintf("%s / %s / %s", e.Predictions.RandomForest, e.Predictions.KNN, e.Predictions.XGBoost),
			fmt.Sprint(e.Predictions.SegmentsProcessed),
		})
	}
	return renderTable([]column{
		{title: "ID"},
		{title: "File"},
		{title: "Overall"},
		{title: "RF / KNN / XGB"},
		{title: "Segments", numeric: true},
	}, rows)
}
