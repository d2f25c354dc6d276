package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/mpq"
)

func newExtractCmd(a *app) *cobra.Command {
	var opts extractFlags
	cmd := &cobra.Command{
		Use:   "extract ARCHIVE DEST [PATTERN...]",
		Short: "Extract files named by the manifest into a directory",
		Long: `
Extract the files named by the manifest into DEST, optionally filtered by
doublestar patterns. Existing files are skipped unless --overwrite is set.
`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg := a.cfg.Extract
			if flags.Changed("workers") {
				cfg.Workers = opts.Workers
			}
			if flags.Changed("overwrite") {
				cfg.Overwrite = opts.Overwrite
			}
			if flags.Changed("preserve-times") {
				cfg.PreserveTimes = opts.PreserveTimes
			}
			if flags.Changed("keep-going") {
				cfg.KeepGoing = opts.KeepGoing
			}

			arc, err := a.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer arc.Close()

			stats, err := arc.ExtractTo(cmd.Context(), args[1],
				mpq.ExtractWithWorkers(cfg.Workers),
				mpq.ExtractWithOverwrite(cfg.Overwrite),
				mpq.ExtractWithPreserveTimes(cfg.PreserveTimes),
				mpq.ExtractWithContinueOnError(cfg.KeepGoing),
				mpq.ExtractWithPatterns(args[2:]...),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "extracted %d files (%s), skipped %d, failed %d\n",
				stats.Extracted, humanize.IBytes(stats.Bytes), stats.Skipped, stats.Failed)
			return err
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.Workers, "workers", "j", 0, "concurrent extractions (default: GOMAXPROCS)")
	f.BoolVar(&opts.Overwrite, "overwrite", false, "overwrite existing files")
	f.BoolVar(&opts.PreserveTimes, "preserve-times", false, "set modification times from (attributes)")
	f.BoolVarP(&opts.KeepGoing, "keep-going", "k", false, "continue after a file fails")
	return cmd
}
