// Package config contains subclient CLI Config and the code to load it.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/centrifugal/subclient/internal/configtypes"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-envparse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix of environment variables overriding configuration keys.
const EnvPrefix = "SUBCLIENT"

type Config struct {
	// Client is a configuration of the publish/subscribe client.
	Client configtypes.Client `mapstructure:"client" json:"client" yaml:"client" toml:"client"`
	// Listen describes entities listen command subscribes to.
	Listen configtypes.Listen `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen"`
	// Log is a configuration for logging.
	Log configtypes.Log `mapstructure:"log" json:"log" yaml:"log" toml:"log"`
	// HTTP server for metrics and health endpoints. It only starts when one of them is enabled.
	HTTP configtypes.HTTPServer `mapstructure:"http_server" json:"http_server" yaml:"http_server" toml:"http_server"`
	// Prometheus metrics endpoint configuration.
	Prometheus configtypes.Prometheus `mapstructure:"prometheus" json:"prometheus" yaml:"prometheus" toml:"prometheus"`
	// Health check endpoint configuration.
	Health configtypes.Health `mapstructure:"health" json:"health" yaml:"health" toml:"health"`
	// Graphite is a configuration for export metrics to Graphite.
	Graphite configtypes.Graphite `mapstructure:"graphite" json:"graphite" yaml:"graphite" toml:"graphite"`
	// OpenTelemetry enables tracing of HTTP requests made by client.
	OpenTelemetry configtypes.OpenTelemetry `mapstructure:"opentelemetry" json:"opentelemetry" yaml:"opentelemetry" toml:"opentelemetry"`
	// Shutdown is a configuration for graceful shutdown.
	Shutdown configtypes.Shutdown `mapstructure:"shutdown" json:"shutdown" yaml:"shutdown" toml:"shutdown"`

	// PidFile is a path to write a file with process PID.
	PidFile string `mapstructure:"pid_file" json:"pid_file" yaml:"pid_file" toml:"pid_file"`
}

type Meta struct {
	FileNotFound bool
	UnknownKeys  []string
	UnknownEnvs  []string
	// KnownEnvVars maps environment variable name to configuration key.
	KnownEnvVars map[string]string
}

// bindPFlags are flags which override configuration keys of the same name.
var bindPFlags = []string{
	"pid_file", "log.level", "log.file", "http_server.address", "http_server.port",
	"prometheus.enabled", "health.enabled", "opentelemetry.enabled",
	"client.origin", "client.subscribe_key", "client.publish_key", "client.auth_key", "client.client_id",
	"listen.channels", "listen.groups", "listen.presence", "listen.state", "listen.events",
}

func DefineFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("pid_file", "", "", "optional path to create PID file")
	cmd.Flags().StringP("log.level", "", "info", "set the log level: trace, debug, info, warn, error, fatal or none")
	cmd.Flags().StringP("log.file", "", "", "optional log file - if not specified logs go to STDERR")
	cmd.Flags().StringP("http_server.address", "a", "", "interface address to serve metrics and health endpoints on")
	cmd.Flags().StringP("http_server.port", "p", "9000", "port to serve metrics and health endpoints on")
	cmd.Flags().BoolP("prometheus.enabled", "", false, "enable Prometheus metrics endpoint")
	cmd.Flags().BoolP("health.enabled", "", false, "enable health check endpoint")
	cmd.Flags().BoolP("opentelemetry.enabled", "", false, "enable OpenTelemetry tracing of client requests")
	DefineClientFlags(cmd)
	cmd.Flags().StringSliceP("listen.channels", "", nil, "channels to subscribe to")
	cmd.Flags().StringSliceP("listen.groups", "", nil, "channel groups to subscribe to, namespace:name or name")
	cmd.Flags().BoolP("listen.presence", "", false, "also subscribe to presence events")
	cmd.Flags().StringP("listen.state", "", "", "client state as JSON object attached to subscribed entities")
	cmd.Flags().StringP("listen.events", "", "all", "comma separated event categories to print")
}

// DefineClientFlags defines flags of client keys only, for one-shot commands.
func DefineClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("client.origin", "", "", "service origin URL")
	cmd.Flags().StringP("client.subscribe_key", "", "", "subscribe key")
	cmd.Flags().StringP("client.publish_key", "", "", "publish key")
	cmd.Flags().StringP("client.auth_key", "", "", "auth key")
	cmd.Flags().StringP("client.client_id", "", "", "client identifier, random UUID by default")
}

func GetConfig(cmd *cobra.Command, configFile string) (Config, Meta, error) {
	v := viper.NewWithOptions(viper.WithDecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		configtypes.StringToDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		configtypes.StringToMapStringStringHookFunc(),
	)))

	keys := configKeys(reflect.TypeOf(Config{}), "")
	for _, k := range keys {
		v.SetDefault(k.name, k.def)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for _, flag := range bindPFlags {
			f := cmd.Flags().Lookup(flag)
			if f == nil {
				continue
			}
			_ = v.BindPFlag(flag, f)
		}
	}

	meta := Meta{}

	if configFile != "" {
		v.SetConfigFile(configFile)
		err := v.ReadInConfig()
		if err != nil {
			var configFileNotFoundError *os.PathError
			if errors.As(err, &configFileNotFoundError) {
				meta.FileNotFound = true
			} else {
				return Config{}, Meta{}, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return Config{}, Meta{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	knownEnvVars := make(map[string]string, len(keys))
	for _, k := range keys {
		knownEnvVars[envName(k.name)] = k.name
	}

	if configFile != "" && !meta.FileNotFound {
		meta.UnknownKeys = findUnknownKeys(v.AllSettings(), conf, "")
		slices.Sort(meta.UnknownKeys)
	}
	meta.UnknownEnvs = checkEnvironmentVars(knownEnvVars)
	meta.KnownEnvVars = knownEnvVars

	return *conf, meta, nil
}

type configKey struct {
	name string
	// def is a value of default tag or zero value of a field.
	def any
}

// configKeys lists leaf keys of configuration struct in mapstructure
// notation. Registering every key as viper default makes all of them
// available for override from environment.
func configKeys(typ reflect.Type, parent string) []configKey {
	var keys []configKey
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		name := appendKeyPath(parent, tag)
		if field.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(field.Type, name)...)
			continue
		}
		var def any
		if d, ok := field.Tag.Lookup("default"); ok {
			def = d
		} else {
			def = reflect.Zero(field.Type).Interface()
		}
		keys = append(keys, configKey{name: name, def: def})
	}
	return keys
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// findValidKeys finds valid keys in a struct by mapstructure tags.
func findValidKeys(typ reflect.Type, validKeys map[string]reflect.StructField) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag != "" && tag != "-" {
			validKeys[tag] = field
		}
	}
}

func findUnknownKeys(data map[string]any, configStruct any, parentKey string) []string {
	var unknownKeys []string
	val := reflect.ValueOf(configStruct)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	validKeys := make(map[string]reflect.StructField)
	findValidKeys(val.Type(), validKeys)

	for key, value := range data {
		field, exists := validKeys[key]
		if !exists {
			unknownKeys = append(unknownKeys, appendKeyPath(parentKey, key))
			continue
		}
		fieldValue := val.FieldByName(field.Name)
		if fieldValue.Kind() != reflect.Struct {
			continue
		}
		if nestedMap, ok := value.(map[string]any); ok {
			unknownKeys = append(unknownKeys, findUnknownKeys(nestedMap, fieldValue.Interface(), appendKeyPath(parentKey, key))...)
		}
	}
	return unknownKeys
}

func appendKeyPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func checkEnvironmentVars(knownEnvVars map[string]string) []string {
	var unknownEnvs []string
	envPrefix := EnvPrefix + "_"

	for _, envVar := range os.Environ() {
		kv, err := envparse.Parse(strings.NewReader(envVar))
		if err != nil {
			continue
		}
		for envKey := range kv {
			if !strings.HasPrefix(envKey, envPrefix) {
				continue
			}
			// Kubernetes adds service discovery variables named after a service.
			if isKubernetesEnvVar(envKey) {
				continue
			}
			if _, ok := knownEnvVars[envKey]; !ok {
				unknownEnvs = append(unknownEnvs, envKey)
			}
		}
	}
	slices.Sort(unknownEnvs)
	return unknownEnvs
}

var k8sEnvRegex = regexp.MustCompile(`^SUBCLIENT(?:_[A-Z]+)?_(PORT|SERVICE_)`)

func isKubernetesEnvVar(envKey string) bool {
	return k8sEnvRegex.MatchString(envKey)
}

// DefaultConfig returns configuration with defaults applied.
func DefaultConfig() Config {
	conf, _, err := GetConfig(nil, "")
	if err != nil {
		panic("error during getting default config: " + err.Error())
	}
	return conf
}
