// Command mpqx inspects and extracts MPQ archives.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// app holds state shared by every subcommand.
type app struct {
	configPath string
	flags      config
	cfg        config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{flags: defaultConfig()}

	root := &cobra.Command{
		Use:   "mpqx",
		Short: "Inspect and extract MPQ archives",
		Long: `
mpqx reads MPQ archives from local files or over HTTP range requests.

Archive paths use backslash separators (Units\Human\Footman.mdx); patterns use
doublestar syntax with slash separators (Units/**/*.mdx). Listing relies on the
archive's (listfile) unless an external listfile is supplied.
`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", os.Getenv("MPQX_CONFIG"), "YAML config `file` (default: $MPQX_CONFIG)")
	f.StringVar(&a.flags.LogLevel, "log-level", a.flags.LogLevel, "log level: debug, info, warn or error")
	f.StringVar(&a.flags.Checksum, "checksum", a.flags.Checksum, "checksum policy: warn, ignore or strict")
	f.StringVar(&a.flags.Locale, "locale", "", "preferred locale `id`, e.g. 0x407")
	f.StringArrayVar(&a.flags.Listfiles, "listfile", nil, "external listfile `path` (repeatable); replaces the archive's (listfile)")
	f.StringVar(&a.flags.MaxFileSize, "max-file-size", a.flags.MaxFileSize, "largest file to extract, 0 for no limit")
	f.StringVar(&a.flags.Cache.Kind, "cache", a.flags.Cache.Kind, "content cache: none, memory or disk")
	f.StringVar(&a.flags.Cache.Dir, "cache-dir", "", "disk cache `directory`")
	f.StringVar(&a.flags.Cache.MaxSize, "cache-size", a.flags.Cache.MaxSize, "cache size limit")

	root.AddCommand(
		newHeaderCmd(a),
		newLsCmd(a),
		newInfoCmd(a),
		newCatCmd(a),
		newExtractCmd(a),
	)
	return root
}

// setup merges the config file with explicitly set flags and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, src string) {
		if flags.Changed(name) {
			*dst = src
		}
	}
	override("log-level", &cfg.LogLevel, a.flags.LogLevel)
	override("checksum", &cfg.Checksum, a.flags.Checksum)
	override("locale", &cfg.Locale, a.flags.Locale)
	override("max-file-size", &cfg.MaxFileSize, a.flags.MaxFileSize)
	override("cache", &cfg.Cache.Kind, a.flags.Cache.Kind)
	override("cache-dir", &cfg.Cache.Dir, a.flags.Cache.Dir)
	override("cache-size", &cfg.Cache.MaxSize, a.flags.Cache.MaxSize)
	if flags.Changed("listfile") {
		cfg.Listfiles = a.flags.Listfiles
	}
	a.cfg = cfg

	level, err := cfg.level()
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mpqx:", err)
		os.Exit(1)
	}
}
