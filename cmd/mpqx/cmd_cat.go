package main

import (
	"github.com/spf13/cobra"
)

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat ARCHIVE PATH...",
		Short: "Write file contents to stdout",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer arc.Close()

			for _, path := range args[1:] {
				data, err := arc.ExtractFile(path)
				if err != nil {
					return err
				}
				if _, err := cmd.OutOrStdout().Write(data); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
