package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/mpq"
)

func newHeaderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "header ARCHIVE",
		Short: "Show the archive header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer arc.Close()
			printHeader(cmd.OutOrStdout(), arc.Header())
			return nil
		},
	}
}

func printHeader(w io.Writer, h mpq.Header) {
	row := func(label, format string, args ...any) {
		fmt.Fprintf(w, "%-16s %s\n", label+":", fmt.Sprintf(format, args...))
	}
	row("format", "%s", h.FormatVersion)
	if h.UserData != nil {
		row("user data", "%s, header at %d", humanize.IBytes(uint64(h.UserData.Size)), h.UserData.HeaderOffset)
	}
	row("archive offset", "%d", h.ArchiveOffset)
	row("header size", "%d", h.HeaderSize)
	row("archive size", "%s (%d bytes)", humanize.IBytes(h.Size()), h.Size())
	row("sector size", "%s", humanize.IBytes(uint64(h.SectorSize())))
	row("hash table", "%d entries at 0x%x", h.HashTableEntries, h.HashTableOffset())
	row("block table", "%d entries at 0x%x", h.BlockTableEntries, h.BlockTableOffset())
	if off, ok := h.HiBlockTableOffset(); ok {
		row("hi-block table", "at 0x%x", off)
	}
	if h.FormatVersion >= mpq.VersionExtendedV2 {
		row("het table", "at 0x%x", h.HetTableOffset)
		row("bet table", "at 0x%x", h.BetTableOffset)
	}
	if h.FormatVersion >= mpq.VersionExtendedV3 {
		row("raw chunk size", "%s", humanize.IBytes(uint64(h.RawChunkSize)))
	}
}
