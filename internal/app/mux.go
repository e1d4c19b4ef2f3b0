package app

import (
	"errors"
	stdlog "log"
	"net"
	"net/http"
	"strings"

	"github.com/centrifugal/subclient/client"
	"github.com/centrifugal/subclient/internal/config"
	"github.com/centrifugal/subclient/internal/health"
	"github.com/centrifugal/subclient/internal/logging"
	"github.com/centrifugal/subclient/internal/middleware"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HandlerFlag is a bit mask of handlers that must be enabled in mux.
type HandlerFlag int

const (
	// HandlerPrometheus enables Prometheus handler.
	HandlerPrometheus HandlerFlag = 1 << iota
	// HandlerHealth enables Health check endpoint.
	HandlerHealth
)

var handlerText = map[HandlerFlag]string{
	HandlerPrometheus: "prometheus",
	HandlerHealth:     "health",
}

func (flags HandlerFlag) String() string {
	flagsOrdered := []HandlerFlag{HandlerPrometheus, HandlerHealth}
	var endpoints []string
	for _, flag := range flagsOrdered {
		text, ok := handlerText[flag]
		if !ok {
			continue
		}
		if flags&flag != 0 {
			endpoints = append(endpoints, text)
		}
	}
	return strings.Join(endpoints, ", ")
}

func handlerFlags(cfg config.Config) HandlerFlag {
	var flags HandlerFlag
	if cfg.Prometheus.Enabled {
		flags |= HandlerPrometheus
	}
	if cfg.Health.Enabled {
		flags |= HandlerHealth
	}
	return flags
}

// clientStatus reports client status for health endpoint.
func clientStatus(c *client.Client) func() health.Status {
	return func() health.Status {
		return health.Status{
			State:     c.State().String(),
			Connected: c.IsConnected(),
			ClientID:  c.ClientID(),
			Entities:  len(c.Subscriptions()),
			Pending:   len(c.PendingPublishes()),
		}
	}
}

// Mux returns a mux with internal endpoints of listen command.
func Mux(cfg config.Config, flags HandlerFlag, status func() health.Status) *http.ServeMux {
	mux := http.NewServeMux()

	var commonMiddlewares []alice.Constructor

	useLoggingMW := logging.Enabled(zerolog.DebugLevel)
	if useLoggingMW {
		commonMiddlewares = append(commonMiddlewares, middleware.LogRequest)
	}
	if cfg.Prometheus.Enabled {
		commonMiddlewares = append(commonMiddlewares, middleware.HTTPServerInstrumentation)
	}
	commonMiddlewares = append(commonMiddlewares, middleware.Get)
	basicChain := alice.New(commonMiddlewares...)

	if flags&HandlerPrometheus != 0 {
		prometheusPrefix := strings.TrimRight(cfg.Prometheus.HandlerPrefix, "/")
		if prometheusPrefix == "" {
			prometheusPrefix = "/"
		}
		mux.Handle(prometheusPrefix, basicChain.Then(promhttp.Handler()))
	}

	if flags&HandlerHealth != 0 {
		healthPrefix := strings.TrimRight(cfg.Health.HandlerPrefix, "/")
		if healthPrefix == "" {
			healthPrefix = "/"
		}
		mux.Handle(healthPrefix, basicChain.Then(health.NewHandler(status, health.Config{
			RequireConnected: true,
		})))
	}

	return mux
}

// runHTTPServer starts server with internal endpoints. Nil is returned
// when no endpoint is enabled.
func runHTTPServer(cfg config.Config, status func() health.Status) *http.Server {
	flags := handlerFlags(cfg)
	if flags == 0 {
		return nil
	}
	addr := net.JoinHostPort(cfg.HTTP.Address, cfg.HTTP.Port)
	log.Info().Msgf("serving %s endpoints on %s", flags, addr)

	server := &http.Server{
		Addr:     addr,
		Handler:  Mux(cfg, flags, status),
		ErrorLog: stdlog.New(&httpErrorLogWriter{Logger: log.Logger}, "", 0),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("error ListenAndServe")
			}
		}
	}()
	return server
}
