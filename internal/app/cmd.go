package app

import (
	"github.com/centrifugal/subclient/internal/config"

	"github.com/spf13/cobra"
)

func Subclient() *cobra.Command {
	return &cobra.Command{
		Use:   "subclient",
		Short: "Subclient",
		Long:  "Publish/subscribe client for hosted real-time messaging service",
	}
}

func Listen() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Subscribe and print received events",
		Long:  `Connect to service, subscribe to configured channels and groups and print received events as JSON lines`,
		Run: func(cmd *cobra.Command, args []string) {
			Run(cmd, configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to config file")
	config.DefineFlags(cmd)
	return cmd
}
