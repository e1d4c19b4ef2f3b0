package cli

import (
	"fmt"
	"runtime"

	"github.com/centrifugal/subclient/internal/build"

	"github.com/spf13/cobra"
)

func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Subclient version information",
		Long:  `Print the version information of Subclient`,
		Run: func(cmd *cobra.Command, args []string) {
			version()
		},
	}
}

func version() {
	fmt.Printf("Subclient v%s (Go version: %s)\n", build.Version, runtime.Version())
}
