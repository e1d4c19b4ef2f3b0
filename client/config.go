package client

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/centrifugal/subclient/internal/backoff"
	"github.com/centrifugal/subclient/internal/presence"
	"github.com/centrifugal/subclient/internal/transport"
)

// Config of Client. Start from DefaultConfig, zero values of boolean
// options differ from defaults.
type Config struct {
	// Origin is the service base URL.
	Origin string `mapstructure:"origin" json:"origin" yaml:"origin" toml:"origin"`
	// PublishKey is required to publish.
	PublishKey string `mapstructure:"publish_key" json:"publish_key" yaml:"publish_key" toml:"publish_key"`
	// SubscribeKey is required for every request.
	SubscribeKey string `mapstructure:"subscribe_key" json:"subscribe_key" yaml:"subscribe_key" toml:"subscribe_key"`
	// AuthKey is passed with every request when set.
	AuthKey string `mapstructure:"auth_key" json:"auth_key" yaml:"auth_key" toml:"auth_key"`
	// ClientID identifies this client for presence. Random UUID is used when empty.
	ClientID string `mapstructure:"client_id" json:"client_id" yaml:"client_id" toml:"client_id"`
	// UserAgent of HTTP requests.
	UserAgent string `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent" toml:"user_agent"`

	// SubscribeTimeout bounds a single long-poll.
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout" json:"subscribe_timeout" yaml:"subscribe_timeout" toml:"subscribe_timeout"`
	// RequestTimeout bounds publish, leave and time requests.
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	// HeartbeatTimeout tells server for how long to consider client present. Zero means server default.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" json:"heartbeat_timeout" yaml:"heartbeat_timeout" toml:"heartbeat_timeout"`
	// FilterExpression is applied by server to messages before delivery.
	FilterExpression string `mapstructure:"filter_expression" json:"filter_expression" yaml:"filter_expression" toml:"filter_expression"`

	// PresencePolicy is "full" (leave then join every member on any change) or "incremental".
	PresencePolicy string `mapstructure:"presence_policy" json:"presence_policy" yaml:"presence_policy" toml:"presence_policy"`
	// CatchUpOnRestore keeps the stream position when connection is restored
	// after network failure.
	CatchUpOnRestore bool `mapstructure:"catch_up_on_restore" json:"catch_up_on_restore" yaml:"catch_up_on_restore" toml:"catch_up_on_restore"`
	// KeepTokenOnListChange keeps the stream position when membership changes.
	KeepTokenOnListChange bool `mapstructure:"keep_token_on_list_change" json:"keep_token_on_list_change" yaml:"keep_token_on_list_change" toml:"keep_token_on_list_change"`

	// ReconnectMinDelay and ReconnectMaxDelay bound backoff between attempts.
	ReconnectMinDelay time.Duration `mapstructure:"reconnect_min_delay" json:"reconnect_min_delay" yaml:"reconnect_min_delay" toml:"reconnect_min_delay"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay" json:"reconnect_max_delay" yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`

	// PublishRateLimit limits publish requests per second, zero means unlimited.
	PublishRateLimit float64 `mapstructure:"publish_rate_limit" json:"publish_rate_limit" yaml:"publish_rate_limit" toml:"publish_rate_limit"`
	PublishBurst     int     `mapstructure:"publish_burst" json:"publish_burst" yaml:"publish_burst" toml:"publish_burst"`

	// Tracing enables OpenTelemetry instrumentation of HTTP requests.
	Tracing bool `mapstructure:"tracing" json:"tracing" yaml:"tracing" toml:"tracing"`
}

// DefaultConfig returns Config with defaults set, keys are left empty.
func DefaultConfig() Config {
	return Config{
		Origin:                transport.DefaultOrigin,
		SubscribeTimeout:      transport.DefaultSubscribeTimeout,
		RequestTimeout:        transport.DefaultRequestTimeout,
		PresencePolicy:        presence.ModeFullBatch.String(),
		CatchUpOnRestore:      true,
		KeepTokenOnListChange: true,
		ReconnectMinDelay:     backoff.DefaultMinDelay,
		ReconnectMaxDelay:     backoff.DefaultMaxDelay,
	}
}

// Validate checks Config.
func (c Config) Validate() error {
	if c.SubscribeKey == "" {
		return errors.New("subscribe key required")
	}
	if c.Origin != "" {
		u, err := url.Parse(c.Origin)
		if err != nil {
			return fmt.Errorf("malformed origin: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("origin must be http or https URL: %q", c.Origin)
		}
	}
	if _, err := presence.ParseMode(c.PresencePolicy); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"subscribe_timeout":   c.SubscribeTimeout,
		"request_timeout":     c.RequestTimeout,
		"heartbeat_timeout":   c.HeartbeatTimeout,
		"reconnect_min_delay": c.ReconnectMinDelay,
		"reconnect_max_delay": c.ReconnectMaxDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s can't be negative", name)
		}
	}
	if c.ReconnectMaxDelay > 0 && c.ReconnectMinDelay > c.ReconnectMaxDelay {
		return errors.New("reconnect_min_delay is greater than reconnect_max_delay")
	}
	if c.PublishRateLimit < 0 || c.PublishBurst < 0 {
		return errors.New("publish rate limit can't be negative")
	}
	return nil
}

func (c Config) transportConfig() transport.Config {
	return transport.Config{
		Origin:           c.Origin,
		PublishKey:       c.PublishKey,
		SubscribeKey:     c.SubscribeKey,
		AuthKey:          c.AuthKey,
		SubscribeTimeout: c.SubscribeTimeout,
		RequestTimeout:   c.RequestTimeout,
		UserAgent:        c.UserAgent,
		Tracing:          c.Tracing,
	}
}
