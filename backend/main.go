package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"job-relay/backend/app/events"
	jwtutil "job-relay/backend/app/jwt"
	"job-relay/backend/config"
	"job-relay/backend/global"
	"job-relay/backend/initialize"
	"job-relay/backend/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "relay",
	Short:        "Command relay between browser agents and the decision engine",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket relay",
	RunE:  runServe,
}

var (
	tokenSubject string
	tokenRole    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin token signed with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		signer := &jwtutil.Signer{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer, ExpMin: cfg.JWT.ExpMin}
		tok, err := signer.Sign(tokenSubject, tokenRole)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

var watchTopic string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print relay events published on NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats url not configured")
		}
		sub, err := events.NewNATSSubscriber(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(watchTopic)
		if err != nil {
			return err
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				var body map[string]any
				if err := json.Unmarshal(msg.Data, &body); err != nil {
					fmt.Printf("%s %s\n", msg.Topic, msg.Data)
					continue
				}
				out, _ := json.Marshal(body)
				fmt.Printf("%s %s %s\n", time.Now().Format(time.TimeOnly), msg.Topic, out)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("RELAY_CONFIG"), "path to config.yaml")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", jwtutil.RoleAdmin, "token role")
	watchCmd.Flags().StringVar(&watchTopic, "topic", events.TopicAll, "subject to subscribe to")
	rootCmd.AddCommand(serveCmd, tokenCmd, watchCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initialize.SetupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	app, err := initialize.Build(cfg)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if configPath != "" {
		err := config.Watch(configPath, app.Reconfigure, func(err error) {
			global.Logger.Warn().Err(err).Msg("config reload rejected")
		})
		if err != nil {
			global.Logger.Warn().Err(err).Msg("config watch disabled")
		}
	}

	srv, err := server.Listen(cfg.HTTP.Host, cfg.HTTP.Port, app.Router)
	if err != nil {
		return err
	}
	app.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	global.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
