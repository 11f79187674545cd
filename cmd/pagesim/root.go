package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	pageSize int
	detailed bool
	verbose  bool
	useMutex bool
}

func newRootCmd() *cobra.Command {
	var options rootOptions

	cmd := &cobra.Command{
		Use:   "pagesim <trace.yaml>",
		Short: "Replay an allocation trace against a paged memory pool",
		Long: `pagesim replays a YAML trace of buffer, image, map, and release operations
against a memory.Memory backed by host memory, then prints the resulting
page map as JSON.

Example:
  pagesim trace.yaml
  pagesim trace.yaml --page-size 65536 --detailed=false`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			trace, err := loadTrace(args[0])
			if err != nil {
				return err
			}
			if options.pageSize > 0 {
				trace.PageSize = options.pageSize
			}

			level := slog.LevelInfo
			if options.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			return replay(logger, trace, options, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&options.pageSize, "page-size", 0, "Override the trace's page size in bytes")
	cmd.Flags().BoolVar(&options.detailed, "detailed", true, "Print every page and allocation, not just totals")
	cmd.Flags().BoolVarP(&options.verbose, "verbose", "v", false, "Log every allocator call")
	cmd.Flags().BoolVar(&options.useMutex, "mutex", false, "Create the memory with locking enabled")

	return cmd
}
