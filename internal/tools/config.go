package tools

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

// PathExists returns whether the given file or directory exists or not
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

var jsonConfigTemplate = `{
  "client": {
    "subscribe_key": "{{.SubscribeKey}}",
    "publish_key": "{{.PublishKey}}",
    "client_id": "{{.ClientID}}"
  },
  "listen": {
    "channels": ["{{.Channel}}"],
    "presence": true
  },
  "log": {
    "level": "info"
  }
}
`

var tomlConfigTemplate = `[client]
  subscribe_key = "{{.SubscribeKey}}"
  publish_key = "{{.PublishKey}}"
  client_id = "{{.ClientID}}"

[listen]
  channels = ["{{.Channel}}"]
  presence = true

[log]
  level = "info"
`

var yamlConfigTemplate = `client:
  subscribe_key: "{{.SubscribeKey}}"
  publish_key: "{{.PublishKey}}"
  client_id: "{{.ClientID}}"

listen:
  channels: ["{{.Channel}}"]
  presence: true

log:
  level: info
`

// ConfigExtension returns lowercased extension of config file without dot.
func ConfigExtension(f string) (string, error) {
	ext := strings.ToLower(filepath.Ext(f))
	if len(ext) > 1 {
		ext = ext[1:]
	}
	switch ext {
	case "json", "toml", "yaml", "yml":
		return ext, nil
	default:
		return "", errors.New("config file must have one of supported extensions: json, toml, yaml, yml")
	}
}

// GenerateConfig generates minimal configuration file at provided path.
// Keys are left as placeholders "demo" which work with public demo keyset.
func GenerateConfig(f string) error {
	exists, err := PathExists(f)
	if err != nil {
		return err
	}
	if exists {
		return errors.New("output config file already exists: " + f)
	}
	ext, err := ConfigExtension(f)
	if err != nil {
		return err
	}

	var text string
	switch ext {
	case "json":
		text = jsonConfigTemplate
	case "toml":
		text = tomlConfigTemplate
	default:
		text = yamlConfigTemplate
	}
	t, err := template.New("config").Parse(text)
	if err != nil {
		return err
	}

	var output bytes.Buffer
	err = t.Execute(&output, struct {
		SubscribeKey string
		PublishKey   string
		ClientID     string
		Channel      string
	}{
		SubscribeKey: "demo",
		PublishKey:   "demo",
		ClientID:     uuid.NewString(),
		Channel:      "hello_world",
	})
	if err != nil {
		return err
	}
	return os.WriteFile(f, output.Bytes(), 0644)
}
