/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ssargent/aora/pkg/api"
	"github.com/ssargent/aora/pkg/config"
	"github.com/ssargent/aora/pkg/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the AORA REST API server. Records are appended with
POST /api/v1/records and read back with GET /api/v1/records/{key}.
Prometheus metrics are served on /metrics.

Examples:
  aora serve
  aora serve --port 9400 --bind 0.0.0.0
  aora serve --api-key mysecretkey`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			cfg.Bind, _ = cmd.Flags().GetString("bind")
		}
		if cmd.Flags().Changed("api-key") {
			cfg.Security.APIKey, _ = cmd.Flags().GetString("api-key")
		}

		logger, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder := metrics.NewRecorder(reg)

		service, err := openConfigured(cmd, cfg, api.ServiceOptions{Logger: logger, Observer: recorder})
		if err != nil {
			return err
		}
		defer service.Close()

		if cfg.Security.APIKey == "" {
			logger.Warn("API key not set, the record API is unauthenticated")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		starter := container.GetServerFactory().CreateServerStarter()
		return starter.StartServer(ctx, service, cfg, api.ServerOptions{
			Logger:   logger,
			Metrics:  recorder,
			Gatherer: reg,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	defaults := config.DefaultConfig()
	serveCmd.Flags().IntP("port", "p", defaults.Port, "Port to listen on, overrides the config file")
	serveCmd.Flags().String("bind", defaults.Bind, "Address to bind to, overrides the config file")
	serveCmd.Flags().String("api-key", "", "API key for authentication, overrides the config file")
}
