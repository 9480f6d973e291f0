/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/aora/pkg/api"
	"github.com/ssargent/aora/pkg/config"
	"github.com/ssargent/aora/pkg/di"
)

var container *di.Container

// SetContainer injects the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aora",
	Short: "AORA - Append-Only Record Archive",
	Long: `AORA is an append-only record store. Records are written once as
self-checking frames and read back by key; a torn tail left by a crash is
repaired on open while any other corruption stops the store from opening.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default "+config.GetDefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory, overrides the config file")
}

// configPath returns the --config flag or the platform default
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return path
}

// loadConfig reads the config file when one exists and applies flag
// overrides on top of it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)

	cfg := config.DefaultConfig()
	if config.ConfigExists(path) {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, cfg.Validate()
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return config.NewLogger(cmd.ErrOrStderr(), cfg.Logging)
}

// openService loads the configuration and opens the record store it names
func openService(cmd *cobra.Command, opts api.ServiceOptions) (*api.Service, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	service, err := openConfigured(cmd, cfg, opts)
	return service, cfg, err
}

// openConfigured opens the record store through the container's service
// factory
func openConfigured(cmd *cobra.Command, cfg *config.Config, opts api.ServiceOptions) (*api.Service, error) {
	if container == nil {
		return nil, errors.New("dependency container not initialized")
	}

	var err error
	if opts.Logger == nil {
		if opts.Logger, err = newLogger(cmd, cfg); err != nil {
			return nil, err
		}
	}

	return container.GetServiceFactory().CreateService(cfg, opts)
}
