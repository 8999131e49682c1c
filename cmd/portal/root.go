package main

import (
	"github.com/jrsteele09/go-erp-portal/internal/config"
	"github.com/jrsteele09/go-erp-portal/internal/logging"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "University ERP web portal",
	Long: `The ERP portal serves the login, registration and role dashboards of the
university ERP, keeps each browser session's tokens fresh and guards every
page by authentication and role.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devBackendCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadConfig reads the configuration and sets up logging.
func loadConfig() (config.Config, error) {
	c, err := config.New()
	if err != nil {
		return nil, err
	}
	level := c.GetLogLevel()
	if logLevel != "" {
		level = logLevel
	}
	logging.Setup(c.GetEnv(), level)
	return c, nil
}
