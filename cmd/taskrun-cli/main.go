package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/taskrun/pkg/client"
	"github.com/cuemby/taskrun/pkg/controlapi"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "taskrun-cli",
	Short:   "taskrun-cli is the operator CLI for the taskrund control plane",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"taskrun-cli version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("daemon", "127.0.0.1:9091", "taskrund control API address")

	rootCmd.AddCommand(runtimesCmd)
	rootCmd.AddCommand(eventsCmd)
}

var runtimesCmd = &cobra.Command{
	Use:   "runtimes",
	Short: "Inspect and manage runtime containers",
}

func init() {
	runtimesCmd.AddCommand(runtimesListCmd)
	runtimesCmd.AddCommand(runtimesRecycleCmd)
}

var runtimesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runtime containers known to the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		daemon, _ := cmd.Flags().GetString("daemon")

		c, err := client.NewClient(daemon)
		if err != nil {
			return fmt.Errorf("failed to connect to daemon: %v", err)
		}
		defer c.Close()

		runtimes, err := c.ListRuntimes()
		if err != nil {
			return fmt.Errorf("failed to list runtimes: %v", err)
		}

		if len(runtimes) == 0 {
			fmt.Println("No runtimes found")
			return nil
		}

		fmt.Printf("%-24s %-10s %-10s %-30s %s\n", "ID", "STATE", "SLOTS", "IMAGE", "TASK")
		for _, r := range runtimes {
			slots := fmt.Sprintf("%d/%d", r.ActiveSlots, r.MaxSlots)
			flags := ""
			if r.IsCanary {
				flags += " canary"
			}
			if r.IsDraining {
				flags += " draining"
			}
			fmt.Printf("%-24s %-10s %-10s %-30s %s%s\n",
				truncate(r.ID, 24), r.State, slots, truncate(r.ImageRef, 30), r.TaskID, flags)
		}
		return nil
	},
}

var runtimesRecycleCmd = &cobra.Command{
	Use:   "recycle RUNTIME_ID",
	Short: "Drain and force-stop a runtime",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		daemon, _ := cmd.Flags().GetString("daemon")
		runtimeID := args[0]

		c, err := client.NewClient(daemon)
		if err != nil {
			return fmt.Errorf("failed to connect to daemon: %v", err)
		}
		defer c.Close()

		if err := c.RecycleRuntime(runtimeID); err != nil {
			return fmt.Errorf("failed to recycle %s: %v", runtimeID, err)
		}

		fmt.Printf("✓ recycle requested for %s\n", runtimeID)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Observe orchestrator events",
}

func init() {
	eventsTailCmd.Flags().StringSlice("type", nil, "filter to one or more event types (repeatable)")
	eventsCmd.AddCommand(eventsTailCmd)
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream orchestrator events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		daemon, _ := cmd.Flags().GetString("daemon")
		types, _ := cmd.Flags().GetStringSlice("type")

		c, err := client.NewClient(daemon)
		if err != nil {
			return fmt.Errorf("failed to connect to daemon: %v", err)
		}
		defer c.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		err = c.TailEvents(ctx, types, func(ev *controlapi.EventMessage) {
			ts := time.UnixMilli(ev.TimestampMs).Format(time.RFC3339)
			fmt.Printf("%s  %-22s %s\n", ts, ev.Type, ev.Message)
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("event stream ended: %v", err)
		}
		return nil
	},
}

// truncate shortens s to at most n bytes for fixed-width table columns.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
