package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/orchestrator"
	"github.com/wardenhq/warden/internal/uds"
)

const version = "0.3.0"

var stateDirFlag string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "warden",
		Short:         "Confidence-gated autonomy wrapper for a supervised coding agent",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&stateDirFlag, "dir", "", "state directory (default .warden, or WARDEN_STATE_DIR)")

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newEnqueueCmd(),
		newScanCmd(),
		newStopCmd(),
		newVersionCmd(),
	)
	return root
}

func loadConfig() (config.Config, error) {
	return config.Load(stateDirFlag)
}

func newClient(cfg config.Config) *uds.Client {
	return uds.NewClient(orchestrator.SocketPath(cfg.StateDir))
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the control loop in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := log.New(os.Stderr, "", 0)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loop := orchestrator.New(cfg, logger)
			reason, err := loop.Run(ctx)
			if err != nil && reason == "" {
				return err
			}
			fmt.Fprintf(os.Stderr, "warden stopped: %s\n", reason)
			os.Exit(orchestrator.ExitCode(reason))
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running loop's status",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			resp, err := newClient(cfg).SendCommand(uds.CmdStatus, nil)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			return printJSON(resp.Data)
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var params orchestrator.EnqueueParams
	var constraints, dependsOn string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a task to the running loop's queue",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if constraints != "" {
				params.Constraints = strings.Split(constraints, ",")
			}
			if dependsOn != "" {
				params.DependsOn = strings.Split(dependsOn, ",")
			}
			resp, err := newClient(cfg).SendCommand(uds.CmdEnqueue, params)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			return printJSON(resp.Data)
		},
	}

	cmd.Flags().StringVar(&params.Type, "type", "", "task category (required)")
	cmd.Flags().IntVar(&params.Priority, "priority", 5, "priority 0-10, higher runs sooner")
	cmd.Flags().StringVar(&params.Goal, "goal", "", "what done looks like")
	cmd.Flags().StringVar(&params.Target, "target", "", "file or area the task touches")
	cmd.Flags().StringVar(&params.Action, "action", "", "verb for the task")
	cmd.Flags().StringVar(&params.Description, "description", "", "free-text detail")
	cmd.Flags().StringVar(&constraints, "constraints", "", "comma-separated constraints")
	cmd.Flags().StringVar(&dependsOn, "depends-on", "", "comma-separated task ids")
	cmd.Flags().IntVar(&params.TimeoutSec, "timeout", 0, "per-run timeout in seconds (0 = none)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Force an immediate rescan of the tasks/ drop directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			resp, err := newClient(cfg).SendCommand(uds.CmdScan, nil)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			return printJSON(resp.Data)
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the running loop to shut down gracefully",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			resp, err := newClient(cfg).SendCommand(uds.CmdShutdown, nil)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			fmt.Println("shutdown requested")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the warden version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("warden %s\n", version)
		},
	}
}

func printJSON(raw json.RawMessage) error {
	var buf map[string]any
	if err := json.Unmarshal(raw, &buf); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
