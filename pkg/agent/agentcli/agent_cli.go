// Package agentcli is the command-line surface of the HID agent.
package agentcli

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingcoyote/hid/hiddev"
	"github.com/kingcoyote/hid/internal/hidhost"
	"github.com/kingcoyote/hid/internal/uhidemu"
	"github.com/kingcoyote/hid/pkg/agent"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "hidagent"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type agentProvider func() *agent.Agent

func NewRootCmd(configDir string) *cobra.Command {
	cfg := agent.Config{
		DataDir:       filepath.Join(configDir, "data"),
		DevicesConfig: filepath.Join(configDir, "devices.yml"),
	}
	rootCmd := &cobra.Command{
		Use:   "hidagent",
		Short: "USB HID host driver agent",
		Long:  `hidagent tracks the plug/unplug lifecycle of configured USB HID devices and exchanges reports with them.`,
	}
	var a *agent.Agent
	provider := func() *agent.Agent {
		return a
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&cfg.DevicesConfig, "devices-config", cfg.DevicesConfig, "devices config file")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		a, err = agent.NewAgent(cfg)
		return err
	}
	rootCmd.AddCommand(NewRun(provider))
	rootCmd.AddCommand(NewWatch(provider))
	rootCmd.AddCommand(NewListDevices(provider))
	rootCmd.AddCommand(NewSend())
	rootCmd.AddCommand(NewEmulate())
	return rootCmd
}

func NewRun(provider agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the HID agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer provider().Close()
			return provider().Run(cmd.Context())
		},
	}
}

func NewWatch(provider agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the agent and stream device events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := provider()
			defer a.Close()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			events := a.Events(ctx)
			errCh := make(chan error, 1)
			go func() {
				errCh <- a.Run(ctx)
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case err := <-errCh:
					return err
				case msg, ok := <-events:
					if !ok {
						return nil
					}
					if err := enc.Encode(msg.Message); err != nil {
						return err
					}
				}
			}
		},
	}
}

type deviceListing struct {
	Attached  []hidhost.DeviceInfo `json:"attached"`
	Sightings any                  `json:"sightings"`
}

func NewListDevices(provider agentProvider) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "list-devices",
		Short: "List attached HID devices and recorded sightings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := provider()
			defer a.Close()

			host, err := hidhost.New(backend)
			if err != nil {
				return err
			}
			attached, err := host.List()
			if err != nil {
				return err
			}
			sightings, err := a.Sightings()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(deviceListing{
				Attached:  attached,
				Sightings: sightings,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "hidapi", "HID backend (hidapi or usbhid)")
	return cmd
}

func NewSend() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "send <vendor:product> <hex-bytes>",
		Short: "Send one output report to a device",
		Long: "Send one output report to a device. The first byte is the " +
			"report ID; use 00 for devices without numbered reports.",
		Args: cobra.ExactArgs(2),
		// no agent needed, skip the data-dir setup of the root command
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := hiddev.ParseIdentity(args[0])
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(strings.ReplaceAll(args[1], " ", ""))
			if err != nil {
				return fmt.Errorf("invalid report bytes: %w", err)
			}
			host, err := hidhost.New(backend)
			if err != nil {
				return err
			}
			dev := hiddev.New(host, id,
				hiddev.WithMatch(host.Match),
				hiddev.WithRegistry(hiddev.NewRegistry()),
			)
			defer dev.Dispose()
			if err := dev.CheckPresent(); err != nil {
				return err
			}
			if !dev.Connected() {
				return fmt.Errorf("device %s is not attached", id)
			}
			if err := dev.Send(data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %s\n", dev.OutputReportLength(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "hidapi", "HID backend (hidapi or usbhid)")
	return cmd
}

func NewEmulate() *cobra.Command {
	var (
		name       string
		idStr      string
		descriptor string
		interval   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Create a virtual HID device (Linux only) and feed it input reports",
		// no agent needed, skip the data-dir setup of the root command
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := hiddev.ParseIdentity(idStr)
			if err != nil {
				return err
			}
			desc, err := os.ReadFile(descriptor)
			if err != nil {
				return err
			}
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			emu := uhidemu.New(log.Named("uhidemu"), name, id, desc, interval)
			return emu.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&name, "name", "hidagent-virtual", "device name")
	cmd.Flags().StringVar(&idStr, "id", "dead:beef", "vendor:product identity")
	cmd.Flags().StringVar(&descriptor, "descriptor", "", "report descriptor file")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "input report interval")
	cmd.MarkFlagRequired("descriptor")
	return cmd
}
