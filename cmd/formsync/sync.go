package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <subscription-id>",
		Short: "Apply pending webhook payloads for one subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.client.ProcessNotification(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.Err != nil {
				return fmt.Errorf("sync %s: %w", result.SubscriptionID, result.Err)
			}
			out, err := json.MarshalIndent(map[string]any{
				"subscription_id":     result.SubscriptionID,
				"start_cursor":        result.StartCursor,
				"cursor":              result.Cursor,
				"pages":               result.Pages,
				"payloads":            result.Payloads,
				"marked_deleted":      result.MarkedDeleted,
				"updated_submissions": result.UpdatedSubmissions,
			}, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
