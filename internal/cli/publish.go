package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/centrifugal/subclient/client"
	"github.com/centrifugal/subclient/internal/config"
	"github.com/centrifugal/subclient/internal/logging"

	"github.com/spf13/cobra"
)

type publishFlags struct {
	configFile string
	channel    string
	data       string
	meta       string
	apns       string
	gcm        string
	store      bool
	compress   bool
}

func Publish() *cobra.Command {
	var f publishFlags
	var publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Publish message to channel",
		Long:  `Publish JSON message to channel and print publish time token`,
		Run: func(cmd *cobra.Command, args []string) {
			token, err := runPublish(cmd, f, os.Stdin)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(token)
		},
	}
	publishCmd.Flags().StringVarP(&f.configFile, "config", "c", "config.json", "path to config file")
	publishCmd.Flags().StringVarP(&f.channel, "channel", "", "", "channel to publish to")
	publishCmd.Flags().StringVarP(&f.data, "data", "d", "-", "JSON message, read from STDIN when -")
	publishCmd.Flags().StringVarP(&f.meta, "meta", "", "", "optional JSON meta available to filter expressions")
	publishCmd.Flags().StringVarP(&f.apns, "apns", "", "", "optional APNS push payload JSON")
	publishCmd.Flags().StringVarP(&f.gcm, "gcm", "", "", "optional GCM push payload JSON")
	publishCmd.Flags().BoolVarP(&f.store, "store", "", true, "keep message in channel history")
	publishCmd.Flags().BoolVarP(&f.compress, "compress", "", false, "send gzip compressed request body")
	publishCmd.Flags().StringP("log.level", "", "info", "set the log level")
	config.DefineClientFlags(publishCmd)
	return publishCmd
}

func runPublish(cmd *cobra.Command, f publishFlags, stdin io.Reader) (string, error) {
	if f.channel == "" {
		return "", errors.New("channel required")
	}
	cfg, _, err := config.GetConfig(cmd, f.configFile)
	if err != nil {
		return "", err
	}
	defer logging.Setup(cfg.Log)()

	data := []byte(f.data)
	if f.data == "-" {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("error reading message: %w", err)
		}
	}
	opts := client.PublishOptions{
		StoreInHistory: f.store,
		Compress:       f.compress,
	}
	if f.meta != "" {
		opts.Meta = []byte(f.meta)
	}
	if f.apns != "" {
		opts.APNSPayload = []byte(f.apns)
	}
	if f.gcm != "" {
		opts.GCMPayload = []byte(f.gcm)
	}

	c := client.New()
	defer c.Close()
	clientCfg := cfg.Client.ToClientConfig()
	if err := c.Configure(clientCfg); err != nil {
		return "", err
	}
	return publish(c, f.channel, data, opts, 2*clientCfg.RequestTimeout)
}

// publish enqueues message and waits for its terminal status.
func publish(c *client.Client, channel string, data []byte, opts client.PublishOptions, timeout time.Duration) (string, error) {
	h, err := c.Publish(channel, data, opts)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		return "", err
	}
	if res.Err != nil {
		return "", res.Err
	}
	return res.Token, nil
}
