// Package graphite periodically exports Prometheus metrics to Graphite
// plaintext protocol endpoint.
package graphite

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/FZambia/eagle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var nonASCII = regexp.MustCompile("[[:^ascii:]]")

// PreparePathComponent cleans string to be used as Graphite metric path.
func PreparePathComponent(s string) string {
	s = nonASCII.ReplaceAllLiteralString(s, "_")
	return strings.ReplaceAll(s, ".", "_")
}

// Config for Graphite Exporter.
type Config struct {
	Address  string
	Gatherer prometheus.Gatherer
	Interval time.Duration
	Prefix   string
	// Tags sends labels as Graphite tags instead of path components.
	Tags bool
	// DialTimeout defaults to one second.
	DialTimeout time.Duration
}

// Exporter to Graphite. It implements service.Service.
type Exporter struct {
	prefix  string
	address string
	timeout time.Duration
	tags    bool
	sink    chan eagle.Metrics
	eagle   *eagle.Eagle
	log     zerolog.Logger
}

// New creates new Graphite Exporter. Gathering starts immediately, Run
// must be called to consume and send metrics.
func New(c Config) *Exporter {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	e := &Exporter{
		prefix:  strings.TrimSuffix(c.Prefix, "."),
		address: c.Address,
		timeout: timeout,
		tags:    c.Tags,
		sink:    make(chan eagle.Metrics),
		log:     log.With().Str("component", "graphite").Logger(),
	}
	e.eagle = eagle.New(eagle.Config{
		Gatherer: c.Gatherer,
		Interval: c.Interval,
		Sink:     e.sink,
	})
	return e
}

// Run sends gathered metrics until ctx is done.
func (e *Exporter) Run(ctx context.Context) error {
	defer func() { _ = e.eagle.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case metrics := <-e.sink:
			if err := e.exportOnce(metrics); err != nil {
				e.log.Warn().Err(err).Str("address", e.address).Msg("error exporting metrics")
			}
		}
	}
}

func (e *Exporter) exportOnce(metrics eagle.Metrics) error {
	conn, err := net.DialTimeout("tcp", e.address, e.timeout)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetWriteDeadline(time.Now().Add(e.timeout))
	w := bufio.NewWriter(conn)
	if err := e.write(w, metrics, time.Now()); err != nil {
		return err
	}
	return w.Flush()
}

func makeTags(labels []string) string {
	if len(labels) < 2 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i+1 < len(labels); i += 2 {
		sb.WriteString(";")
		sb.WriteString(labels[i])
		sb.WriteString("=")
		sb.WriteString(labels[i+1])
	}
	return sb.String()
}

func (e *Exporter) write(w io.Writer, metrics eagle.Metrics, now time.Time) error {
	ts := now.Unix()
	for _, item := range metrics.Items {
		for _, value := range item.Values {
			parts := []string{e.prefix}
			for _, p := range []string{item.Namespace, item.Subsystem, item.Name, value.Name} {
				if p != "" {
					parts = append(parts, p)
				}
			}
			if !e.tags {
				for _, l := range value.Labels {
					parts = append(parts, PreparePathComponent(l))
				}
			}
			key := strings.Join(parts, ".")
			if e.tags {
				key += makeTags(value.Labels)
			}
			var err error
			if item.Type == eagle.MetricTypeCounter {
				_, err = fmt.Fprintf(w, "%s %d %d\n", key, int64(value.Value), ts)
			} else {
				_, err = fmt.Fprintf(w, "%s %f %d\n", key, value.Value, ts)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
