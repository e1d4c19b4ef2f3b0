package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/centrifugal/subclient/client"
	"github.com/centrifugal/subclient/internal/build"
	"github.com/centrifugal/subclient/internal/config"
	"github.com/centrifugal/subclient/internal/logging"
	"github.com/centrifugal/subclient/internal/metrics"
	"github.com/centrifugal/subclient/internal/service"
	"github.com/centrifugal/subclient/internal/telemetry"
	"github.com/centrifugal/subclient/internal/tools"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/automaxprocs/maxprocs"
)

// Run starts listen command: connects client, subscribes configured
// entities and prints received events to STDOUT until terminated.
func Run(cmd *cobra.Command, configFile string) {
	dotEnvUsed := false
	if tools.FileExists(".env") {
		err := godotenv.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("error loading .env file")
		}
		dotEnvUsed = true
	}
	cfg, cfgMeta, err := config.GetConfig(cmd, configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error getting config")
	}

	ctx, serviceCancel := context.WithCancel(context.Background())
	defer serviceCancel()

	logCloseFn := logging.Setup(cfg.Log)
	defer logCloseFn()

	if cfgMeta.FileNotFound {
		log.Warn().Msg("config file not found, continue using environment and flag options")
	} else {
		absConfPath, _ := filepath.Abs(configFile)
		log.Info().Str("path", absConfPath).Msg("using config file")
		if dotEnvUsed {
			log.Info().Msg("environment variables have been loaded from .env file")
		}
	}
	err = tools.WritePidFile(cfg.PidFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error writing PID")
	}
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, i ...interface{}) {
		log.Info().Msgf(strings.ToLower(s), i...)
	}))

	err = cfg.Validate()
	if err != nil {
		log.Fatal().Err(err).Msg("error validating config")
	}

	// Registered services are stopped after client is closed.
	serviceManager := service.NewManager()

	log.Info().
		Str("version", build.Version).
		Str("runtime", runtime.Version()).
		Int("pid", os.Getpid()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Str("presence_policy", cfg.Client.PresencePolicy).
		Msg("starting subclient")

	if build.Version == "0.0.0" {
		log.Warn().Msg("running a development build of subclient (version 0.0.0)")
	}
	logClientKeys(cfg)

	if cfg.Prometheus.Enabled || cfg.Graphite.Enabled {
		if err := metrics.Init(metrics.Config{ConstLabels: cfg.Prometheus.ConstLabels}); err != nil {
			log.Fatal().Err(err).Msg("error initializing metrics")
		}
	}

	var tracerProvider *trace.TracerProvider
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err = telemetry.SetupTracing(ctx, telemetry.Config{
			ServiceName: cfg.OpenTelemetry.ServiceName,
			ClientID:    cfg.Client.ClientID,
			Origin:      cfg.Client.Origin,
			SampleRatio: cfg.OpenTelemetry.SampleRatio,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("error setting up opentelemetry tracing")
		}
	}

	plan, err := newListenPlan(cfg.Listen)
	if err != nil {
		log.Fatal().Err(err).Msg("error building listen plan")
	}
	categories, err := client.ParseCategory(cfg.Listen.Events)
	if err != nil {
		log.Fatal().Err(err).Msg("error parsing event categories")
	}

	c := client.New()
	clientCfg := cfg.Client.ToClientConfig()
	clientCfg.Tracing = cfg.OpenTelemetry.Enabled
	if err := c.Configure(clientCfg); err != nil {
		log.Fatal().Err(err).Msg("error configuring client")
	}
	printer := newEventPrinter(os.Stdout)
	if _, err := c.Observe(categories, client.Filter{}, printer.Print); err != nil {
		log.Fatal().Err(err).Msg("error adding event observer")
	}

	if len(plan.entities) == 0 {
		log.Warn().Msg("no channels or groups to listen, client stays idle")
	}
	if err := plan.apply(c); err != nil {
		log.Fatal().Err(err).Msg("error subscribing")
	}
	err = c.Connect(func(e client.ConnectionEvent) {
		if e.Status == client.StatusConnectFailed {
			log.Error().Err(e.Err).Msg("connect failed")
			return
		}
		log.Info().Str("client_id", c.ClientID()).Str("status", e.Status.String()).Msg("client connected")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting client")
	}

	if cfg.Graphite.Enabled {
		name := cfg.Client.ClientID
		if name == "" {
			name, _ = os.Hostname()
		}
		serviceManager.Register(graphiteExporter(cfg, name))
	}
	serviceManager.Run(ctx)

	httpServer := runHTTPServer(cfg, clientStatus(c))

	logStartWarnings(cfg, cfgMeta)

	handleSignals(cmd, configFile, cfg, c, plan, httpServer, tracerProvider, serviceManager, serviceCancel)
}

// reload applies configuration changes which do not require reconnect:
// log level, listen plan and client identifier.
func reload(cmd *cobra.Command, configFile string, c *client.Client, current listenPlan) (listenPlan, error) {
	newCfg, _, err := config.GetConfig(cmd, configFile)
	if err != nil {
		return current, err
	}
	if err = newCfg.Validate(); err != nil {
		return current, err
	}
	plan, err := newListenPlan(newCfg.Listen)
	if err != nil {
		return current, err
	}
	zerolog.SetGlobalLevel(logging.Level(newCfg.Log.Level))
	if err = plan.apply(c); err != nil {
		return current, err
	}
	if id := newCfg.Client.ClientID; id != "" && id != c.ClientID() {
		err = c.SetClientID(id, true, func(e client.IdentityEvent) {
			if e.Err != nil {
				log.Error().Err(e.Err).Str("client_id", e.Current).Msg("error changing client id")
				return
			}
			log.Info().Str("previous", e.Previous).Str("client_id", e.Current).Msg("client id changed")
		})
		if err != nil {
			return plan, err
		}
	}
	return plan, nil
}

func handleSignals(
	cmd *cobra.Command, configFile string, cfg config.Config, c *client.Client, plan listenPlan,
	httpServer *http.Server, tracerProvider *trace.TracerProvider, serviceManager *service.Manager,
	serviceCancel context.CancelFunc,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, os.Interrupt, syscall.SIGTERM)
	for {
		sig := <-sigCh
		log.Info().Msgf("signal received: %v", sig)
		switch sig {
		case syscall.SIGHUP:
			// Client keys and connection options can't change without reconnect,
			// only log level, listen entities and client id are reloaded.
			log.Info().Msg("reloading configuration")
			newPlan, err := reload(cmd, configFile, c, plan)
			plan = newPlan
			if err != nil {
				log.Error().Err(err).Msg("error reloading configuration")
				continue
			}
			log.Info().Msg("configuration successfully reloaded")
		case syscall.SIGINT, os.Interrupt, syscall.SIGTERM:
			log.Info().Msg("shutting down ...")
			pidFile := cfg.PidFile
			shutdownTimeout := cfg.Shutdown.Timeout
			go time.AfterFunc(shutdownTimeout.ToDuration(), func() {
				if pidFile != "" {
					_ = os.Remove(pidFile)
				}
				log.Fatal().Msg("shutdown timeout reached")
			})

			if httpServer != nil {
				_ = httpServer.Shutdown(context.Background()) // We have a separate timeout goroutine.
			}

			c.Close()

			serviceCancel()
			_ = serviceManager.Wait()

			if tracerProvider != nil {
				_ = tracerProvider.Shutdown(context.Background())
			}

			if pidFile != "" {
				_ = os.Remove(pidFile)
			}
			os.Exit(0)
		}
	}
}
