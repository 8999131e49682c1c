package main

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/jrsteele09/go-erp-portal/authapi"
	"github.com/jrsteele09/go-erp-portal/internal/config"
	"github.com/jrsteele09/go-erp-portal/internal/metrics"
	"github.com/jrsteele09/go-erp-portal/server"
	"github.com/jrsteele09/go-erp-portal/session"
	"github.com/jrsteele09/go-erp-portal/sso"
	"github.com/jrsteele09/go-erp-portal/tokenstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const evictionInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		return run(c)
	},
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	displayAppname(c.GetAppName())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	options := []server.Option{server.WithMetrics(m, reg)}

	backend, check, err := tokenBackend(c)
	if err != nil {
		return err
	}
	if check != nil {
		options = append(options, server.WithHealthCheck("redis", check))
	}

	api := authapi.New(c.GetAuthAPIURL(),
		authapi.WithTimeout(c.GetAuthAPITimeout()),
		authapi.WithMetrics(m),
	)
	registry := session.NewRegistry(api, backend,
		session.WithStoreTTL(c.GetMaxSessionAge()),
		session.WithIdleTimeout(c.GetSessionIdleTimeout()),
		session.WithRefreshLeadTime(c.GetRefreshLeadTime()),
		session.WithRegistryMetrics(m),
	)
	defer registry.CloseAll()
	go registry.RunEviction(ctx, evictionInterval)

	if c.SSOEnabled() {
		provider, err := sso.NewProvider(ctx, sso.ConfigFrom(c))
		if err != nil {
			return fmt.Errorf("[run] sso: %w", err)
		}
		options = append(options, server.WithSSO(provider))
		log.Info().Str("issuer", c.GetSSOIssuerURL()).Msg("single sign-on enabled")
	}

	handler, err := server.New(c, registry, options...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go listenAndServe(httpServer, errs)
	if err := waitForStop(errs); err != nil {
		return err
	}
	log.Info().Msg("shutting down")
	return shutdown(httpServer)
}

// tokenBackend picks Redis when REDIS_ADDR is set and the in-memory store otherwise.
func tokenBackend(c config.Config) (tokenstore.Backend, func(context.Context) error, error) {
	if c.GetRedisAddr() == "" {
		log.Info().Msg("using in-memory session store")
		return tokenstore.NewMemoryBackend(), nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})
	rb := tokenstore.NewRedisBackend(client, c.GetRedisKeyPrefix())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rb.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("[tokenBackend] redis %s: %w", c.GetRedisAddr(), err)
	}
	log.Info().Str("addr", c.GetRedisAddr()).Msg("using redis session store")
	return rb, rb.Ping, nil
}
