package main

import (
	"github.com/centrifugal/subclient/internal/app"
	"github.com/centrifugal/subclient/internal/cli"
)

func main() {
	rootCmd := app.Subclient()
	rootCmd.AddCommand(
		app.Listen(),
		cli.Publish(),
		cli.Time(),
		cli.Version(),
		cli.CheckConfig(),
		cli.GenConfigCommand(),
		cli.DefaultConfigCommand(),
		cli.DefaultEnv(),
	)
	_ = rootCmd.Execute()
}
