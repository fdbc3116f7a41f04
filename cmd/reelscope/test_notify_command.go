package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Ask the daemon to send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.TestNotification(cmd.Context())
			if err != nil {
				return wrapDaemonError(err)
			}
			out := cmd.OutOrStdout()
			if resp.Message != "" {
				fmt.Fprintln(out, resp.Message)
			} else if resp.Sent {
				fmt.Fprintln(out, "Test notification sent")
			} else {
				fmt.Fprintln(out, "Notification not sent")
			}
			return nil
		},
	}
}
