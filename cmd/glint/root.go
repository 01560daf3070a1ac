package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/padiauj/glint"
	"github.com/padiauj/glint/internal/config"
	"github.com/padiauj/glint/internal/glinterr"
	"github.com/padiauj/glint/internal/glog"
)

var (
	flagConfig     string
	flagIndex      string
	flagLimit      int
	flagExtensions []string
	flagFilesOnly  bool
	flagDirsOnly   bool
)

var rootCmd = &cobra.Command{
	Use:   "glint",
	Short: "Near-instant file-name search over local NTFS volumes",
	Long: `glint indexes the NTFS Master File Table directly and tails the
USN Change Journal to stay fresh, the way Voidtools Everything does on
Windows. This binary is a thin reference consumer of the glint core API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to glint.conf (defaults to platform app-data path)")
	pf.StringVar(&flagIndex, "index", "", "path to the index snapshot (defaults to platform app-data path)")
	pf.IntVar(&flagLimit, "limit", 0, "maximum results to return (0 = config default)")
	pf.StringArrayVarP(&flagExtensions, "ext", "e", nil, "restrict results to these extensions (repeatable)")
	pf.BoolVar(&flagFilesOnly, "files-only", false, "restrict results to files")
	pf.BoolVar(&flagDirsOnly, "dirs-only", false, "restrict results to directories")
}

// exitCodeFor maps a returned error onto spec §6.2's exit code table.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case glinterr.Is(err, glinterr.InvalidQuery):
		return 2
	case glinterr.Is(err, glinterr.PermissionDenied), glinterr.Is(err, glinterr.Unsupported):
		return 3
	case glinterr.Is(err, glinterr.JournalLost):
		return 4
	case glinterr.Is(err, glinterr.SnapshotIncompatible), glinterr.Is(err, glinterr.Corrupt):
		return 5
	default:
		return 1
	}
}

func defaultBackendName() string {
	if runtime.GOOS == "windows" {
		return "ntfs"
	}
	return "traversal"
}

func resolveConfigPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return config.DefaultPath()
}

func resolveIndexPath() (string, error) {
	if flagIndex != "" {
		return flagIndex, nil
	}
	return config.IndexPath()
}

func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintln(os.Stderr, "glint: warning:", w)
	}
	return cfg, nil
}

// newCore builds a glint.Core using the persistent flags and the resolved
// configuration file.
func newCore() (*glint.Core, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := glog.New(os.Stderr, glog.ParseLevel(cfg.LogLevel))
	return glint.New(glint.Options{
		BackendName: defaultBackendName(),
		Config:      cfg,
		Logger:      logger,
	})
}

// buildQueryFilters appends the --ext/--files-only/--dirs-only global flags
// onto a user's query text, since query.Parse shares one grammar for both
// typed terms and flag-derived ones (spec §6.2's flags are sugar over §4.5's
// grammar).
func buildQueryFilters(text string) string {
	if flagFilesOnly {
		text += " file:"
	}
	if flagDirsOnly {
		text += " dir:"
	}
	if len(flagExtensions) > 0 {
		text += " ext:"
		for i, e := range flagExtensions {
			if i > 0 {
				text += ","
			}
			text += e
		}
	}
	return text
}
