package cli

import (
	"fmt"
	"os"

	"github.com/agentsh/agentsh/internal/telemetry"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var logDir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print each run's summary as its telemetry log is written",
		RunE: func(cmd *cobra.Command, args []string) error {
			return telemetry.Watch(cmd.Context(), logDir, func(path string, log telemetry.Log) {
				fmt.Fprintf(os.Stdout, "%s\t%s\t%s\truntime=%dms\tcpu=%d%%\tmem_peak=%dKB\n",
					path, log.Program, log.Summary.ExitReason, log.Summary.RuntimeMS,
					log.Summary.CPUUsagePercent, log.Summary.MemoryPeakKB)
			})
		},
	}

	cmd.Flags().StringVar(&logDir, "log-dir", getenvDefault("SANDBOXCTL_LOG_DIR", "logs"), "directory to watch for new telemetry logs")

	return cmd
}
