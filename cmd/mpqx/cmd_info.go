package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/mpq"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info ARCHIVE PATH...",
		Short: "Show stored metadata for files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer arc.Close()

			for i, path := range args[1:] {
				fi, err := arc.FileInfo(path)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printFileInfo(cmd.OutOrStdout(), fi)
			}
			return nil
		},
	}
}

func printFileInfo(w io.Writer, fi mpq.FileInfo) {
	row := func(label, format string, args ...any) {
		fmt.Fprintf(w, "%-16s %s\n", label+":", fmt.Sprintf(format, args...))
	}
	row("path", "%s", fi.Path)
	row("block", "%d", fi.BlockIndex)
	row("locale", "0x%04x", fi.Locale)
	row("offset", "0x%x", fi.Offset)
	row("size", "%s (%d bytes)", humanize.IBytes(uint64(fi.FileSize)), fi.FileSize)
	row("stored", "%s (%d bytes)", humanize.IBytes(uint64(fi.CompressedSize)), fi.CompressedSize)
	row("layout", "%s", fi.Plan)
	row("flags", "%s", fi.Flags)
	if !fi.HasAttributes {
		return
	}
	if fi.CRC32 != 0 {
		row("crc32", "%08x", fi.CRC32)
	}
	if fi.MD5 != ([16]byte{}) {
		row("md5", "%x", fi.MD5)
	}
	if !fi.ModTime.IsZero() {
		row("modified", "%s (%s)", fi.ModTime.Format("2006-01-02 15:04:05 MST"), humanize.Time(fi.ModTime))
	}
}
