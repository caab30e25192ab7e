package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRoot builds the sandboxctl command tree.
func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sandboxctl",
		Short:         "sandboxctl: run untrusted executables under a Linux namespace sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("sandboxctl {{.Version}}\n")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
