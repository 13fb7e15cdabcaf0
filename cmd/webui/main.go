package main

import (
	"context"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"job-relay/cmd/webui/ui"
)

var (
	relayURL string
	token    string
	user     string
	interval time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "relay-console",
	Short:        "Terminal console for the relay's admin API",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if token == "" && user != "" {
			s, err := ui.Login(cmd.Context(), relayURL, user, os.Getenv("RELAY_PASSWORD"))
			if err != nil {
				return err
			}
			token = s.Token
		}
		p := tea.NewProgram(ui.NewRootModel(relayURL, token, interval), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func init() {
	rootCmd.Flags().StringVar(&relayURL, "relay", envOr("RELAY_URL", "http://127.0.0.1:8787"), "relay base URL")
	rootCmd.Flags().StringVar(&token, "token", os.Getenv("RELAY_TOKEN"), "admin bearer token (see `relay token`)")
	rootCmd.Flags().StringVar(&user, "user", os.Getenv("RELAY_USER"), "operator to log in as when no token is given (password from RELAY_PASSWORD)")
	rootCmd.Flags().DurationVar(&interval, "refresh", 2*time.Second, "device list refresh interval")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
