// Package cmd provides the command-line interface for assetpipe with
// configuration drawn from several sources.
//
// Configuration System:
//
//	Sources, highest priority first:
//	1. Command-line flags (--port, --no-open, --log-level, ...)
//	2. ASSETPIPE_* environment variables, also read from a .env file
//	3. The configuration file: --config, else ASSETPIPE_CONFIG_FILE, else
//	   .assetpipe.yml in the working directory
//	4. Built-in defaults (src/ compiled into app/)
//
// Environment Variables:
//
//	ASSETPIPE_CONFIG_FILE: Path to a custom configuration file
//	ASSETPIPE_SERVER_PORT: Override the dev server port
//	ASSETPIPE_LOG_LEVEL:   Override the log level
//	And every other key following the ASSETPIPE_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
)

var cfgFile string

// rootCmd runs the default action when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "assetpipe",
	Short: "Front-end asset pipeline with a live-reload dev server",
	Long: `assetpipe compiles the assets under src/ into app/ and serves the result with
live reload.

Pipeline:
  styles    src/scss/style.scss  -> sass, prefix, merge media queries, minify -> app/css/style.min.css
  bundle    src/js/scripts       -> src/js/scripts.js
  scripts   src/js/scripts.js    -> transpile, minify, source map -> app/js/scripts.min.js
  images    src/img/**           -> optimized copies in app/img/
  fonts     src/fonts/**         -> app/fonts/
  markup    src/**/*.html        -> app/

Without a subcommand assetpipe builds everything in order, starts the dev
server and rebuilds on change: stylesheets are swapped in place, anything
else reloads the page.

Quick Start:
  assetpipe init        Write .assetpipe.yml and create the source folders
  assetpipe             Build, serve and watch
  assetpipe build       Build everything once, in parallel
  assetpipe task NAME   Run a single task
  assetpipe list        Show the path layout and watch bindings`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is "+config.DefaultFileName+", can also use "+config.EnvPrefix+"_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	AddStandardFlags(rootCmd, "server")
}

// initConfig selects the configuration file and enables environment
// overrides.
//
// File selection, highest priority first:
//  1. --config flag
//  2. ASSETPIPE_CONFIG_FILE environment variable
//  3. .assetpipe.yml in the current directory
//
// A .env file in the current directory is loaded first, so it can set any
// of the variables above.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Warning: failed to load .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetpipe")
	}

	config.BindEnv(viper.GetViper())

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	case errors.As(err, &notFound):
	default:
		// An explicit but unreadable file must not silently fall back to defaults.
		fmt.Fprintln(os.Stderr, "Error: reading config file:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// projectRoot is the directory holding the config file, else the working
// directory.
func projectRoot() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		abs, err := filepath.Abs(used)
		if err != nil {
			return "", err
		}
		return filepath.Dir(abs), nil
	}
	return os.Getwd()
}

func newLogger(cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ignoreCancel treats a shutdown by signal as success.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
