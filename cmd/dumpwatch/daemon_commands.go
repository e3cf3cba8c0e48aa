package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dumpwatch/internal/daemonctl"
	"dumpwatch/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start watching (launches the daemon when it is not running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Watch started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Watch already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					return fmt.Errorf("watch not started: %s", result.Message)
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	var shutdown bool
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop watching; --shutdown also terminates the daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			var (
				result daemonctl.StopResult
				err    error
			)
			if shutdown {
				result, err = daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			} else {
				result, err = daemonctl.StopWatch(ctx.socketPath())
			}
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.WatchWasRunning {
				fmt.Fprintln(stdout, "Watch stopped")
			} else {
				fmt.Fprintln(stdout, "Watch was not running")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			if result.Terminated {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			return nil
		},
	}
	stopCmd.Flags().BoolVar(&shutdown, "shutdown", false, "Terminate the daemon process as well")

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon process (applies watch_dir and fs_events changes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					return fmt.Errorf("daemon restarted but watch not started: %s", result.Start.Message)
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, watch, and dedup status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd.OutOrStdout(), snapshot, time.Now())
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit status as JSON")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Scan the watch directory now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Check()
				if err != nil {
					return err
				}
				return printCheckResult(cmd, resp)
			})
		},
	}

	reloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Re-read the configuration file in the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reload()
				if err != nil {
					return fmt.Errorf("reload failed; previous configuration stays active: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration reloaded from %s (transport %s, %d recipients, poll every %s)\n",
					resp.ConfigPath, resp.Transport, resp.Recipients, time.Duration(resp.PollIntervalSeconds)*time.Second)
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd, checkCmd, reloadCmd}
}

func printCheckResult(cmd *cobra.Command, resp *ipc.CheckResponse) error {
	out := cmd.OutOrStdout()
	if resp.Triggered {
		fmt.Fprintln(out, "Check requested; the running watch scans now (see `dumpwatch status`)")
		return nil
	}
	fmt.Fprintf(out, "Cycle %s: found %d, notified %d, archived %d\n",
		resp.CycleID, resp.Found, len(resp.Notified), resp.Archived)
	for _, name := range resp.Notified {
		fmt.Fprintf(out, "  %s\n", name)
	}
	if resp.Error != "" {
		return fmt.Errorf("cycle %s: %s", resp.CycleID, resp.Error)
	}
	return nil
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	return opts
}
