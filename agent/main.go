package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"job-relay/agent/internal/command"
	"job-relay/agent/internal/config"
	"job-relay/agent/internal/connection"
	"job-relay/agent/internal/logger"
	"job-relay/agent/internal/relayclient"
	"job-relay/agent/internal/state"
)

var (
	cfgPath  string
	relayURL string
	deviceID string

	client *relayclient.Client
)

var rootCmd = &cobra.Command{
	Use:          "relay-agent",
	Short:        "Reference browser agent for the command relay",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Init(cfgPath)
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.LogPath, cfg.LogLevel); err != nil {
			return err
		}
		if relayURL == "" {
			relayURL = cfg.RelayURL
		}
		if deviceID == "" {
			deviceID = cfg.DeviceID
		}
		state.SetDeviceID(deviceID)
		client = relayclient.New(relayURL, deviceID)
		return nil
	},
}

var (
	reportType string
	reportData string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Send one event through POST /agent/data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Report(cmd.Context(), reportType, reportData); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var (
	pollCount    int
	pollInterval time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll GET /agent/poll and print what arrives",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval := pollInterval
		if interval <= 0 {
			interval = config.Get().PollInterval
		}
		for i := 0; pollCount <= 0 || i < pollCount; i++ {
			if i > 0 {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(interval):
				}
			}
			cmds, err := client.Poll(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range cmds {
				fmt.Println(command.Format(c))
			}
		}
		return nil
	},
}

var (
	autoConfirm  bool
	confirmDelay time.Duration
	maxRetries   int
	retryDelay   time.Duration
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Hold the WebSocket push channel open and execute commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := command.NewManager()
		command.RegisterDefaults(d, command.Options{AutoConfirm: autoConfirm, ConfirmDelay: confirmDelay})
		m := connection.New(client, d, maxRetries, retryDelay)
		logger.Infof("Streaming for device %s from %s", deviceID, relayURL)
		return m.Run(cmd.Context())
	},
}

var scenarioTimeout time.Duration

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Drive the navigate-then-scroll flow over the poll transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), scenarioTimeout)
		defer cancel()
		return runScenario(ctx, client, os.Stdout)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (overrides agent.relay.url)")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device", "", "device id (overrides agent.device_id)")

	reportCmd.Flags().StringVar(&reportType, "type", relayclient.KindDOMSnapshot, "event kind")
	reportCmd.Flags().StringVar(&reportData, "data", "", "event payload")

	pollCmd.Flags().IntVar(&pollCount, "count", 1, "number of polls (0 polls forever)")
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 0, "delay between polls")

	streamCmd.Flags().BoolVar(&autoConfirm, "auto-confirm", false, "report navigation_complete after each NAVIGATE")
	streamCmd.Flags().DurationVar(&confirmDelay, "confirm-delay", 0, "simulated page load time before confirming")
	streamCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "give up after this many failed dials (0 retries forever)")
	streamCmd.Flags().DurationVar(&retryDelay, "retry-delay", time.Second, "base delay between dials")

	scenarioCmd.Flags().DurationVar(&scenarioTimeout, "timeout", 30*time.Second, "overall deadline")

	rootCmd.AddCommand(reportCmd, pollCmd, streamCmd, scenarioCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
