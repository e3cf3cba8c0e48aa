package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dumpwatch/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured transport",
		Long: "Send a test notification through the running daemon's transport.\n" +
			"The daemon uses its current configuration, so run `dumpwatch reload` after editing recipients.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return fmt.Errorf("test notification: %w", err)
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				if !resp.Sent {
					reason := resp.Message
					if reason == "" {
						reason = "no reason given"
					}
					return fmt.Errorf("notification not sent: %s", reason)
				}
				if resp.Message != "" {
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the daemon response as JSON")
	return cmd
}
