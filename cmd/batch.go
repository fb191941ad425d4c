package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/smartdl/internal/output"
	"github.com/tanq16/smartdl/internal/scheduler"
	"github.com/tanq16/smartdl/internal/utils"
)

const maxConnections = 64

func newBatchCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "batch YAML_FILE [--workers N]",
		Short: "Process multiple downloads from a YAML file",
		Long: `Process multiple downloads from a YAML file of the form:

  downloads:
    - mirrors: [https://a.example.com/f.iso, https://b.example.com/f.iso]
      op: ./f.iso
      hash: sha256:<digest>
      threads: 8`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := utils.ReadBatchFile(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, output.FError(err.Error()))
				os.Exit(1)
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, output.FError("No downloads found in the batch file"))
				os.Exit(1)
			}
			cfg := buildConfig()
			if workers*cfg.Threads > maxConnections {
				cfg.Threads = max(maxConnections/workers, 1)
			}
			jobs, err := scheduler.JobsFromBatch(entries, cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, output.FError(err.Error()))
				os.Exit(1)
			}
			runJobs(jobs, workers)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Number of files to download in parallel")
	return cmd
}
