// Package cmd provides the CLI commands for marketctl.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrsteele09/go-market-client/client"
	"github.com/jrsteele09/go-market-client/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	output   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "marketctl",
	Short: "marketctl - marketplace client",
	Long: `marketctl talks to the marketplace API: sign up and verify an account,
log in, browse and search listings, manage your own listings and profile.

Configuration:
  Config is loaded from marketctl.yaml in the current directory or
  $HOME/.marketctl/.

  Environment variables override config values with the MARKETCTL_ prefix.
  Example: MARKETCTL_API_BASE_URL=https://market.example.com/api`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch output {
		case outputTable, outputJSON, outputYAML:
			return nil
		default:
			return errors.Errorf("unknown output format %q (table, json, yaml)", output)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./marketctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", outputTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// withApp loads the configuration, builds the client, restores the stored
// session and runs fn. The context ends on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *client.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	level := cfg.GetLogLevel()
	if logLevel != "" {
		level = logLevel
	}
	logger := newLogger(level)

	app, err := client.New(ctx, cfg, client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error().Err(err).Msg("closing client")
		}
	}()

	if err := app.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("restoring session")
	}
	return fn(ctx, app)
}

// requireSession fails unless a logged in session was restored.
func requireSession(app *client.App) error {
	if !app.Session.IsAuthenticated() {
		return errors.New("not logged in, run marketctl login first")
	}
	return nil
}
