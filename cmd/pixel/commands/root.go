// Package commands implements the pixel CLI.
package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pixel/internal/config"
	"github.com/teslashibe/go-pixel/internal/log"
	"github.com/teslashibe/go-pixel/pkg/pixel"
)

var (
	configFile string
	logLevel   string

	// cfg is loaded by the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pixel",
	Short: "Pixel AI voice assistant",
	Long: `Pixel AI is a realtime voice assistant backed by the Gemini Live API.

It can set reminders and send messages to a user's Telegram account.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.Log.Level = logLevel
		}
		log.Init(c.Log.Level)
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "pixel.yaml", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// openApp builds and initialises the application from cfg.
func openApp(ctx context.Context) (*pixel.App, error) {
	app, err := pixel.New(cfg, pixel.WithLogger(log.L()))
	if err != nil {
		return nil, err
	}
	if err := app.Init(ctx); err != nil {
		app.Shutdown()
		return nil, fmt.Errorf("init: %w", err)
	}
	return app, nil
}
