package tools

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateConfig(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"config.json", "config.toml", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, GenerateConfig(path))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Contains(t, string(data), "subscribe_key")
			require.Contains(t, string(data), "hello_world")
			require.Error(t, GenerateConfig(path), "existing file is not overwritten")
		})
	}
	require.Error(t, GenerateConfig(filepath.Join(dir, "config.ini")))
}

func TestConfigExtension(t *testing.T) {
	ext, err := ConfigExtension("a/b/Config.YML")
	require.NoError(t, err)
	require.Equal(t, "yml", ext)
	_, err = ConfigExtension("config")
	require.Error(t, err)
}

func TestWritePidFile(t *testing.T) {
	require.NoError(t, WritePidFile(""))
	path := filepath.Join(t.TempDir(), "subclient.pid")
	require.False(t, FileExists(path))
	require.NoError(t, WritePidFile(path))
	require.True(t, FileExists(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}
