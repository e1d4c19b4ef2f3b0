package configtypes

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Duration is a time.Duration which is written to config files as a
// human readable string like "10s".
type Duration time.Duration

func (d Duration) String() string {
	return d.ToDuration().String()
}

func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText is used by TOML encoder.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

var durationType = reflect.TypeOf(Duration(0))

// StringToDurationHookFunc decodes strings like "1m30s" and plain numbers
// of nanoseconds into Duration.
func StringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			d, err := time.ParseDuration(data.(string))
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", data, err)
			}
			return Duration(d), nil
		case reflect.Int, reflect.Int64:
			return Duration(reflect.ValueOf(data).Int()), nil
		default:
			return data, nil
		}
	}
}
