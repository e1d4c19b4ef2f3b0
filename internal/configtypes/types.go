package configtypes

import (
	"fmt"

	"github.com/centrifugal/subclient/client"
	"github.com/centrifugal/subclient/internal/membership"

	"github.com/segmentio/encoding/json"
)

// Client is a configuration of the publish/subscribe client.
type Client struct {
	// Origin is the service base URL.
	Origin string `mapstructure:"origin" json:"origin" yaml:"origin" toml:"origin" default:"https://ps.pndsn.com"`
	// PublishKey is required to publish messages.
	PublishKey string `mapstructure:"publish_key" json:"publish_key" yaml:"publish_key" toml:"publish_key"`
	// SubscribeKey is required for every request.
	SubscribeKey string `mapstructure:"subscribe_key" json:"subscribe_key" yaml:"subscribe_key" toml:"subscribe_key"`
	// AuthKey is passed with every request when set.
	AuthKey string `mapstructure:"auth_key" json:"auth_key" yaml:"auth_key" toml:"auth_key"`
	// ClientID identifies this client in presence events. Random UUID is used when empty.
	ClientID string `mapstructure:"client_id" json:"client_id" yaml:"client_id" toml:"client_id"`
	// UserAgent of HTTP requests.
	UserAgent string `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent" toml:"user_agent" default:"subclient"`

	SubscribeTimeout Duration `mapstructure:"subscribe_timeout" json:"subscribe_timeout" yaml:"subscribe_timeout" toml:"subscribe_timeout" default:"310s"`
	RequestTimeout   Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout" toml:"request_timeout" default:"10s"`
	// HeartbeatTimeout tells server for how long to consider client present. Zero means server default.
	HeartbeatTimeout Duration `mapstructure:"heartbeat_timeout" json:"heartbeat_timeout" yaml:"heartbeat_timeout" toml:"heartbeat_timeout"`
	// FilterExpression is applied by server to messages before delivery.
	FilterExpression string `mapstructure:"filter_expression" json:"filter_expression" yaml:"filter_expression" toml:"filter_expression"`

	// PresencePolicy is "full" or "incremental".
	PresencePolicy        string `mapstructure:"presence_policy" json:"presence_policy" yaml:"presence_policy" toml:"presence_policy" default:"full"`
	CatchUpOnRestore      bool   `mapstructure:"catch_up_on_restore" json:"catch_up_on_restore" yaml:"catch_up_on_restore" toml:"catch_up_on_restore" default:"true"`
	KeepTokenOnListChange bool   `mapstructure:"keep_token_on_list_change" json:"keep_token_on_list_change" yaml:"keep_token_on_list_change" toml:"keep_token_on_list_change" default:"true"`

	ReconnectMinDelay Duration `mapstructure:"reconnect_min_delay" json:"reconnect_min_delay" yaml:"reconnect_min_delay" toml:"reconnect_min_delay" default:"100ms"`
	ReconnectMaxDelay Duration `mapstructure:"reconnect_max_delay" json:"reconnect_max_delay" yaml:"reconnect_max_delay" toml:"reconnect_max_delay" default:"20s"`

	// PublishRateLimit limits publish requests per second, zero means unlimited.
	PublishRateLimit float64 `mapstructure:"publish_rate_limit" json:"publish_rate_limit" yaml:"publish_rate_limit" toml:"publish_rate_limit"`
	PublishBurst     int     `mapstructure:"publish_burst" json:"publish_burst" yaml:"publish_burst" toml:"publish_burst"`
}

// ToClientConfig converts file configuration to client.Config.
func (c Client) ToClientConfig() client.Config {
	return client.Config{
		Origin:                c.Origin,
		PublishKey:            c.PublishKey,
		SubscribeKey:          c.SubscribeKey,
		AuthKey:               c.AuthKey,
		ClientID:              c.ClientID,
		UserAgent:             c.UserAgent,
		SubscribeTimeout:      c.SubscribeTimeout.ToDuration(),
		RequestTimeout:        c.RequestTimeout.ToDuration(),
		HeartbeatTimeout:      c.HeartbeatTimeout.ToDuration(),
		FilterExpression:      c.FilterExpression,
		PresencePolicy:        c.PresencePolicy,
		CatchUpOnRestore:      c.CatchUpOnRestore,
		KeepTokenOnListChange: c.KeepTokenOnListChange,
		ReconnectMinDelay:     c.ReconnectMinDelay.ToDuration(),
		ReconnectMaxDelay:     c.ReconnectMaxDelay.ToDuration(),
		PublishRateLimit:      c.PublishRateLimit,
		PublishBurst:          c.PublishBurst,
	}
}

// Listen describes what listen command subscribes to.
type Listen struct {
	Channels []string `mapstructure:"channels" json:"channels" yaml:"channels" toml:"channels"`
	Groups   []string `mapstructure:"groups" json:"groups" yaml:"groups" toml:"groups"`
	// Presence also subscribes presence companions of channels and groups.
	Presence bool `mapstructure:"presence" json:"presence" yaml:"presence" toml:"presence"`
	// State is a JSON object attached to every subscribed entity.
	State string `mapstructure:"state" json:"state" yaml:"state" toml:"state"`
	// Events is a comma separated list of event categories to print.
	Events string `mapstructure:"events" json:"events" yaml:"events" toml:"events" default:"all"`
}

// MemberState decodes State, nil is returned when State is empty.
func (l Listen) MemberState() (client.MemberState, error) {
	if l.State == "" {
		return nil, nil
	}
	var st client.MemberState
	if err := json.Unmarshal([]byte(l.State), &st); err != nil {
		return nil, fmt.Errorf("malformed state: %w", err)
	}
	if err := membership.ValidateState(st); err != nil {
		return nil, err
	}
	return st, nil
}

type Log struct {
	// Level is trace, debug, info, warn, error, fatal or none.
	Level string `mapstructure:"level" json:"level" yaml:"level" toml:"level" default:"info"`
	// File is an optional log file, logs go to STDERR when empty.
	File string `mapstructure:"file" json:"file" yaml:"file" toml:"file"`
}

// HTTPServer serves internal endpoints: metrics and health.
type HTTPServer struct {
	Address string `mapstructure:"address" json:"address" yaml:"address" toml:"address"`
	Port    string `mapstructure:"port" json:"port" yaml:"port" toml:"port" default:"9000"`
}

type Prometheus struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" yaml:"handler_prefix" toml:"handler_prefix" default:"/metrics"`

	// ConstLabels are added to every exported metric, useful to tell apart
	// several listeners scraped by one Prometheus.
	ConstLabels MapStringString `mapstructure:"const_labels" json:"const_labels" yaml:"const_labels" toml:"const_labels,omitempty"`
}

type Health struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" yaml:"handler_prefix" toml:"handler_prefix" default:"/health"`
}

type Graphite struct {
	Enabled  bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	Host     string   `mapstructure:"host" json:"host" yaml:"host" toml:"host" default:"localhost"`
	Port     int      `mapstructure:"port" json:"port" yaml:"port" toml:"port" default:"2003"`
	Prefix   string   `mapstructure:"prefix" json:"prefix" yaml:"prefix" toml:"prefix" default:"subclient"`
	Interval Duration `mapstructure:"interval" json:"interval" yaml:"interval" toml:"interval" default:"10s"`
	Tags     bool     `mapstructure:"tags" json:"tags" yaml:"tags" toml:"tags"`
}

type OpenTelemetry struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`

	// ServiceName is used unless OTEL_SERVICE_NAME is set.
	ServiceName string  `mapstructure:"service_name" json:"service_name" yaml:"service_name" toml:"service_name" default:"subclient"`
	SampleRatio float64 `mapstructure:"sample_ratio" json:"sample_ratio" yaml:"sample_ratio" toml:"sample_ratio" default:"1"`
}

type Shutdown struct {
	Timeout Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout" toml:"timeout" default:"10s"`
}
