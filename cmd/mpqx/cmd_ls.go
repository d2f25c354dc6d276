package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/mpq"
)

func newLsCmd(a *app) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls ARCHIVE [PATTERN...]",
		Short: "List files named by the manifest",
		Long: `
List the archive files named by the manifest that exist in the archive,
optionally filtered by doublestar patterns such as "Units/**/*.mdx".
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer arc.Close()

			patterns := args[1:]
			if len(patterns) == 0 {
				patterns = []string{"**"}
			}
			var names []string
			for _, p := range patterns {
				matched, err := arc.Match(p)
				if err != nil {
					return err
				}
				for _, name := range matched {
					if !slices.Contains(names, name) {
						names = append(names, name)
					}
				}
			}
			return listFiles(cmd.OutOrStdout(), arc, names, long)
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show sizes and flags")
	return cmd
}

func listFiles(w io.Writer, arc *mpq.Archive, names []string, long bool) error {
	for _, name := range names {
		if !long {
			fmt.Fprintln(w, name)
			continue
		}
		fi, err := arc.FileInfo(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%10s %10s  %-19s  %s\n",
			humanize.IBytes(uint64(fi.FileSize)),
			humanize.IBytes(uint64(fi.CompressedSize)),
			fi.Plan,
			name)
	}
	return nil
}
