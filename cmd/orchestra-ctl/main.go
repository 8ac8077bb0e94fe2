package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orchestra/internal/ipc"
	"orchestra/internal/orchestra"
	"orchestra/internal/registry"
)

var (
	socketPath string
	timeout    time.Duration
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:          "orchestra-ctl",
	Short:        "Control a running orchestra daemon",
	SilenceUsage: true,
}

func main() {
	defaultSocket := os.Getenv("SOCKET_PATH")
	if defaultSocket == "" {
		defaultSocket = ipc.DefaultSocketPath
	}
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", defaultSocket, "daemon control socket")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to wait for the daemon")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON")

	rootCmd.AddCommand(
		simpleCmd(ipc.CmdListen, "Start listening for voice commands"),
		simpleCmd(ipc.CmdStop, "Stop listening"),
		simpleCmd(ipc.CmdToggle, "Switch between command and conversation mode"),
		simpleCmd(ipc.CmdCancelSpeech, "Stop the current spoken reply"),
		simpleCmd(ipc.CmdStatus, "Show listening state, running automations and recent activity"),
		sayCmd(),
		triggerCmd(),
		healthCmd(),
		automationsCmd(),
		triggersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func send(req ipc.Request) (ipc.Response, error) {
	resp, err := ipc.Send(socketPath, req, timeout)
	if err != nil {
		return resp, fmt.Errorf("orchestra-daemon not running: %w", err)
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

// run sends req and prints the resulting snapshot.
func run(req ipc.Request) error {
	resp, err := send(req)
	if err != nil {
		return err
	}
	if asJSON {
		return printRaw(resp)
	}

	var snap orchestra.Snapshot
	if err := json.Unmarshal(resp.Snapshot, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	renderSnapshot(os.Stdout, snap)
	return nil
}

func simpleCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ipc.Request{Cmd: name})
		},
	}
}

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text...>",
		Short: "Send typed text as if it had been spoken",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ipc.Request{Cmd: ipc.CmdSay, Text: strings.Join(args, " ")})
		},
	}
}

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <id> [sub-trigger]",
		Short: "Run an automation directly",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.Request{Cmd: ipc.CmdTrigger, Trigger: args[0]}
			if len(args) == 2 {
				req.Sub = args[1]
			}
			return run(req)
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   ipc.CmdHealth,
		Short: "Check the automation backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(ipc.Request{Cmd: ipc.CmdHealth})
			if err != nil {
				return err
			}
			if asJSON {
				return printRaw(resp)
			}
			var h struct {
				Status    string `json:"status"`
				Version   string `json:"version"`
				Timestamp string `json:"timestamp"`
			}
			if err := json.Unmarshal(resp.Data, &h); err != nil {
				return err
			}
			fmt.Printf("backend %s (version %s, %s)\n", statusColor(h.Status), h.Version, h.Timestamp)
			return nil
		},
	}
}

func automationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   ipc.CmdAutomations,
		Short: "List automations offered by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(ipc.Request{Cmd: ipc.CmdAutomations})
			if err != nil {
				return err
			}
			if asJSON {
				return printRaw(resp)
			}
			return renderAutomations(os.Stdout, resp.Data)
		},
	}
}

func triggersCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "List voice triggers and their keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Builtin()
			if file != "" {
				var err error
				if reg, err = registry.LoadFile(file); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reg.Triggers())
			}
			renderTriggers(os.Stdout, reg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", os.Getenv("TRIGGERS_FILE"), "trigger catalogue YAML")
	return cmd
}

func printRaw(resp ipc.Response) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
