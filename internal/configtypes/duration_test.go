package configtypes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeDuration(t *testing.T, input any) (Duration, error) {
	t.Helper()
	var out struct {
		D Duration `mapstructure:"d"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: StringToDurationHookFunc(),
		Result:     &out,
	})
	require.NoError(t, err)
	err = dec.Decode(map[string]any{"d": input})
	return out.D, err
}

func TestStringToDurationHookFunc(t *testing.T) {
	d, err := decodeDuration(t, "1m30s")
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, d.ToDuration())

	d, err = decodeDuration(t, int64(time.Second))
	require.NoError(t, err)
	require.Equal(t, time.Second, d.ToDuration())

	_, err = decodeDuration(t, "soon")
	require.Error(t, err)
}

func TestDurationMarshal(t *testing.T) {
	v := struct {
		D Duration `json:"d" yaml:"d" toml:"d"`
	}{D: Duration(1500 * time.Millisecond)}

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"d":"1.5s"}`, string(data))

	data, err = yaml.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, "d: 1.5s\n", string(data))

	data, err = toml.Marshal(v)
	require.NoError(t, err)
	require.Contains(t, string(data), "1.5s")
}

func TestClientToClientConfig(t *testing.T) {
	c := Client{
		SubscribeKey:      "sub",
		PresencePolicy:    "incremental",
		ReconnectMinDelay: Duration(time.Second),
		ReconnectMaxDelay: Duration(time.Minute),
	}
	cfg := c.ToClientConfig()
	require.Equal(t, "sub", cfg.SubscribeKey)
	require.Equal(t, "incremental", cfg.PresencePolicy)
	require.Equal(t, time.Second, cfg.ReconnectMinDelay)
	require.Equal(t, time.Minute, cfg.ReconnectMaxDelay)
	require.NoError(t, cfg.Validate())
}
