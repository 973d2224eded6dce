package commands

import (
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the modelctl build version, overridable via -ldflags at
// release build time (left as the development default otherwise).
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the modelctl version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("modelctl %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
