package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/centrifugal/subclient/internal/config"
	"github.com/centrifugal/subclient/internal/tools"

	"github.com/pelletier/go-toml/v2"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func DefaultConfigCommand() *cobra.Command {
	var defaultConfigFile string
	var defaultConfigCmd = &cobra.Command{
		Use:   "defaultconfig",
		Short: "Generate full configuration file with defaults",
		Long:  `Generate full Subclient configuration file with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			DefaultConfig(defaultConfigFile)
		},
	}
	defaultConfigCmd.Flags().StringVarP(&defaultConfigFile, "config", "c", "config.json", "path to default config file to generate")
	return defaultConfigCmd
}

func DefaultConfig(configFile string) {
	if err := writeDefaultConfig(configFile); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

// marshalDefaultConfig encodes configuration with defaults in a format
// matching file extension. Keys are left empty so result does not pass
// validation until subscribe key is set.
func marshalDefaultConfig(ext string) ([]byte, error) {
	conf := config.DefaultConfig()
	switch ext {
	case "json":
		return json.MarshalIndent(conf, "", "  ")
	case "toml":
		return toml.Marshal(conf)
	case "yaml", "yml":
		return yaml.Marshal(conf)
	default:
		return nil, errors.New("unsupported config extension: " + ext)
	}
}

func writeDefaultConfig(configFile string) error {
	exists, err := tools.PathExists(configFile)
	if err != nil {
		return err
	}
	if exists {
		return errors.New("target file already exists")
	}
	ext, err := tools.ConfigExtension(configFile)
	if err != nil {
		return err
	}
	b, err := marshalDefaultConfig(ext)
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, b, 0644)
}
