package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDedupCommand(ctx *commandContext) *cobra.Command {
	dedupCmd := &cobra.Command{
		Use:   "dedup",
		Short: "Inspect and prune the record of notified dumps",
	}

	dedupCmd.AddCommand(newDedupListCommand(ctx))
	dedupCmd.AddCommand(newDedupForgetCommand(ctx))
	dedupCmd.AddCommand(newDedupClearCommand(ctx))

	return dedupCmd
}

func newDedupListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dump names that were already notified",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDedup(func(api dedupAPI) error {
				entries, err := api.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONList(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dumps recorded")
					return nil
				}
				table := renderTable(
					[]string{"Name", "Recorded"},
					buildDedupRows(entries),
					[]columnAlignment{alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit entries as JSON")
	return cmd
}

func newDedupForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <name>...",
		Short: "Forget dump names so they are notified again if they reappear",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDedup(func(api dedupAPI) error {
				out := cmd.OutOrStdout()
				var missing []string
				for _, arg := range args {
					name := strings.TrimSpace(arg)
					if name == "" {
						return errors.New("dump name must not be empty")
					}
					removed, err := api.Forget(cmd.Context(), name)
					if err != nil {
						return err
					}
					if !removed {
						missing = append(missing, name)
						continue
					}
					fmt.Fprintf(out, "Forgot %s\n", name)
				}
				if len(missing) > 0 {
					fmt.Fprintf(out, "Not recorded: %s\n", strings.Join(missing, ", "))
				}
				return nil
			})
		},
	}
}

func newDedupClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every dedup entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDedup(func(api dedupAPI) error {
				removed, err := api.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d dedup entries\n", removed)
				return nil
			})
		},
	}
}
