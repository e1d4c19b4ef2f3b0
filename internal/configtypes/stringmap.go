package configtypes

import (
	"fmt"
	"os"
	"reflect"
	"regexp"

	"github.com/go-viper/mapstructure/v2"
	"github.com/segmentio/encoding/json"
)

// MapStringString is a string map which can be set in config file as an
// object or as a list of key/value objects, and in environment as JSON.
// Values may reference SUBCLIENT_VAR_ environment variables as ${NAME}.
type MapStringString map[string]string

var customEnvVarRegex = regexp.MustCompile(`\$\{(SUBCLIENT_VAR_[^}]+)}`)

func expandEnvVars(m map[string]string) error {
	for key, val := range m {
		for _, match := range customEnvVarRegex.FindAllStringSubmatch(val, -1) {
			if _, exists := os.LookupEnv(match[1]); !exists {
				return fmt.Errorf("environment variable %q not found", match[1])
			}
		}
		m[key] = customEnvVarRegex.ReplaceAllStringFunc(val, func(match string) string {
			return os.Getenv(customEnvVarRegex.FindStringSubmatch(match)[1])
		})
	}
	return nil
}

var mapStringStringType = reflect.TypeOf(MapStringString{})

func StringToMapStringStringHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != mapStringStringType {
			return data, nil
		}

		m := make(map[string]string)
		switch v := data.(type) {
		case nil:
			return MapStringString(nil), nil
		case MapStringString:
			return v, nil
		case string:
			if v == "" {
				return MapStringString(nil), nil
			}
			if err := json.Unmarshal([]byte(v), &m); err != nil {
				return nil, fmt.Errorf("malformed JSON object: %w", err)
			}
		case map[string]any:
			for key, value := range v {
				strValue, ok := value.(string)
				if !ok {
					return nil, fmt.Errorf("expected string value for key %q, got %T", key, value)
				}
				m[key] = strValue
			}
		case []any:
			for i, item := range v {
				kvMap, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("expected map for element %d, got %T", i, item)
				}
				key, ok := kvMap["key"].(string)
				if !ok || key == "" {
					return nil, fmt.Errorf("missing or invalid key in element %d", i)
				}
				if _, exists := m[key]; exists {
					return nil, fmt.Errorf("duplicate key %q at element %d", key, i)
				}
				value, ok := kvMap["value"].(string)
				if !ok {
					return nil, fmt.Errorf("missing or invalid value in element %d", i)
				}
				m[key] = value
			}
		default:
			return nil, fmt.Errorf("unsupported type %T for MapStringString", data)
		}
		if err := expandEnvVars(m); err != nil {
			return nil, err
		}
		return MapStringString(m), nil
	}
}
