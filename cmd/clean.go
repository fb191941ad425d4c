package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/smartdl/internal/engine"
	"github.com/tanq16/smartdl/internal/output"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean OUTPUT_PATH",
		Short: "Remove temporary part files left for an output path",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := engine.Clean(args[0]); err != nil {
				fmt.Fprintln(os.Stderr, output.FError(fmt.Sprintf("Error cleaning up temporary files: %v", err)))
				os.Exit(1)
			}
			fmt.Println(output.FSuccess("Temporary files cleaned up"))
		},
	}
}
