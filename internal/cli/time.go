package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/centrifugal/subclient/client"
	"github.com/centrifugal/subclient/internal/config"

	"github.com/spf13/cobra"
)

func Time() *cobra.Command {
	var configFile string
	var timeCmd = &cobra.Command{
		Use:   "time",
		Short: "Print current server time token",
		Long:  `Request current time token from service, useful to check keys and connectivity`,
		Run: func(cmd *cobra.Command, args []string) {
			token, err := serverTime(cmd, configFile)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(token)
		},
	}
	timeCmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to config file")
	config.DefineClientFlags(timeCmd)
	return timeCmd
}

func serverTime(cmd *cobra.Command, configFile string) (string, error) {
	cfg, _, err := config.GetConfig(cmd, configFile)
	if err != nil {
		return "", err
	}
	c := client.New()
	defer c.Close()
	clientCfg := cfg.Client.ToClientConfig()
	if err := c.Configure(clientCfg); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), clientCfg.RequestTimeout)
	defer cancel()
	return c.Time(ctx)
}
