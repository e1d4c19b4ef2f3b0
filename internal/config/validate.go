package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/centrifugal/subclient/client"
	"github.com/centrifugal/subclient/internal/logging"

	"github.com/tidwall/gjson"
)

// Validate validates config and returns error if problems found.
func (c Config) Validate() error {
	if err := c.Client.ToClientConfig().Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	for _, ch := range c.Listen.Channels {
		if err := client.Channel(ch).Validate(); err != nil {
			return fmt.Errorf("listen channel %q: %w", ch, err)
		}
	}
	for _, g := range c.Listen.Groups {
		if _, err := client.ParseGroup(g); err != nil {
			return fmt.Errorf("listen group %q: %w", g, err)
		}
	}
	if c.Listen.State != "" {
		if !gjson.Valid(c.Listen.State) || !gjson.Parse(c.Listen.State).IsObject() {
			return errors.New("listen state must be a JSON object")
		}
		if _, err := c.Listen.MemberState(); err != nil {
			return fmt.Errorf("listen state: %w", err)
		}
	}
	if _, err := client.ParseCategory(c.Listen.Events); err != nil {
		return fmt.Errorf("listen events: %w", err)
	}
	if c.Prometheus.Enabled && !strings.HasPrefix(c.Prometheus.HandlerPrefix, "/") {
		return errors.New("prometheus handler prefix must start with /")
	}
	if c.Health.Enabled && !strings.HasPrefix(c.Health.HandlerPrefix, "/") {
		return errors.New("health handler prefix must start with /")
	}
	if c.Graphite.Enabled {
		if c.Graphite.Host == "" || c.Graphite.Port <= 0 {
			return errors.New("graphite host and port required")
		}
		if c.Graphite.Interval <= 0 {
			return errors.New("graphite interval must be positive")
		}
	}
	if c.OpenTelemetry.Enabled && (c.OpenTelemetry.SampleRatio < 0 || c.OpenTelemetry.SampleRatio > 1) {
		return errors.New("opentelemetry sample ratio must be in [0, 1]")
	}
	if c.Shutdown.Timeout < 0 {
		return errors.New("shutdown timeout can't be negative")
	}
	return nil
}
