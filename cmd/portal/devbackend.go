package main

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-erp-portal/devbackend"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var devBackendCmd = &cobra.Command{
	Use:   "devbackend",
	Short: "Run a local stand-in for the ERP Auth API",
	Long: `Runs an in-memory implementation of the Auth API (login, register, refresh,
me, logout) seeded with demo accounts:

  admin / Admin123
  instructor / Instructor123
  student / Student123

Point the portal at it with AUTH_API_URL=http://localhost:8081. Set
TOKEN_SIGNING_SECRET to the same value as DEV_BACKEND_SECRET to have the
portal verify token signatures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if !c.IsDev() {
			log.Warn().Str("env", c.GetEnv()).Msg("the development backend is not meant for this environment")
		}

		backend := devbackend.New(c)
		if err := backend.Seed(); err != nil {
			return err
		}
		for _, route := range backend.Routes() {
			log.Debug().Msg(route)
		}

		httpServer := &http.Server{
			Addr:              c.GetDevBackendPort(),
			Handler:           backend,
			ReadHeaderTimeout: 10 * time.Second,
		}
		errs := make(chan error, 1)
		go listenAndServe(httpServer, errs)
		if err := waitForStop(errs); err != nil {
			return err
		}
		return shutdown(httpServer)
	},
}
