package cli

import (
	"fmt"
	"os"

	"github.com/centrifugal/subclient/internal/config"
	"github.com/centrifugal/subclient/internal/tools"

	"github.com/spf13/cobra"
)

func GenConfigCommand() *cobra.Command {
	var outputConfigFile string
	var genConfigCmd = &cobra.Command{
		Use:   "genconfig",
		Short: "Generate minimal configuration file to start with",
		Long:  `Generate minimal configuration file to start with, keys point to public demo keyset`,
		Run: func(cmd *cobra.Command, args []string) {
			GenConfig(cmd, outputConfigFile)
		},
	}
	genConfigCmd.Flags().StringVarP(&outputConfigFile, "config", "c", "config.json", "path to output config file")
	return genConfigCmd
}

func GenConfig(cmd *cobra.Command, outputConfigFile string) {
	if err := genConfig(cmd, outputConfigFile); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

func genConfig(cmd *cobra.Command, outputConfigFile string) error {
	err := tools.GenerateConfig(outputConfigFile)
	if err != nil {
		return err
	}
	cfg, _, err := config.GetConfig(cmd, outputConfigFile)
	if err != nil {
		_ = os.Remove(outputConfigFile)
		return fmt.Errorf("error getting config: %w", err)
	}
	err = cfg.Validate()
	if err != nil {
		_ = os.Remove(outputConfigFile)
		return fmt.Errorf("error validating config: %w", err)
	}
	return nil
}
