package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/smartdl/internal/engine"
	"github.com/tanq16/smartdl/internal/output"
	"github.com/tanq16/smartdl/internal/scheduler"
	"github.com/tanq16/smartdl/internal/utils"
)

func newGetCmd() *cobra.Command {
	var outputPath string
	var hash string

	cmd := &cobra.Command{
		Use:   "get MIRROR [MIRROR...] [--output OUTPUT_PATH]",
		Short: "Download one file, failing over between the given mirrors",
		Long: `Download one file from one or more mirrors serving identical content.

Examples:
  smartdl get https://a.example.com/file.iso https://b.example.com/file.iso
  smartdl get s3://bucket/file.iso -o ./file.iso --hash sha256:<digest>`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := buildConfig()
			if hash != "" {
				algorithm, digest, err := utils.ParseHashSpec(hash)
				if err != nil {
					fmt.Fprintln(os.Stderr, output.FError(err.Error()))
					os.Exit(1)
				}
				cfg.Hash = &engine.HashSpec{Algorithm: algorithm, Expected: digest}
			}
			if outputPath != "" {
				if info, err := os.Stat(outputPath); err == nil && !info.IsDir() {
					outputPath = utils.RenewOutputPath(outputPath)
				}
			}
			runJobs([]scheduler.Job{{Mirrors: args, OutputPath: outputPath, Config: cfg}}, 1)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file or directory (file name inferred when omitted)")
	cmd.Flags().StringVar(&hash, "hash", "", "Expected digest as algorithm:hex (md5, sha1, sha256, ...)")
	return cmd
}
