package app

import (
	"net"
	"strconv"
	"strings"

	"github.com/centrifugal/subclient/internal/config"
	"github.com/centrifugal/subclient/internal/metrics/graphite"

	"github.com/prometheus/client_golang/prometheus"
)

func graphiteExporter(cfg config.Config, name string) *graphite.Exporter {
	return graphite.New(graphite.Config{
		Address:  net.JoinHostPort(cfg.Graphite.Host, strconv.Itoa(cfg.Graphite.Port)),
		Gatherer: prometheus.DefaultGatherer,
		Prefix:   strings.TrimSuffix(cfg.Graphite.Prefix, ".") + "." + graphite.PreparePathComponent(name),
		Interval: cfg.Graphite.Interval.ToDuration(),
		Tags:     cfg.Graphite.Tags,
	})
}
