package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/embedpg/embedpg/internal/log"
)

// Version is the current version of embedpg.
var Version = "0.2.0"

var (
	flagRegistry   string
	flagOS         string
	flagArch       string
	flagLibc       string
	flagNoCache    bool
	flagPrerelease bool
	flagQuiet      bool
	flagDebug      bool
)

var rootCmd = &cobra.Command{
	Use:   "embedpg",
	Short: "Acquire PostgreSQL binary distributions",
	Long: `embedpg resolves a PostgreSQL version request like "latest" or "17.2"
against the binary release registry, downloads the archive built for
the target platform, verifies it against its published SHA-256 digest
and extracts it locally.

Verified archives are cached under ~/.embedpg/cache so repeated
installs of the same version skip the network.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func setupLogging() {
	var out io.Writer = os.Stderr
	level := slog.LevelWarn
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagQuiet:
		out = io.Discard
	}
	log.SetDefault(log.NewText(out, level))
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRegistry, "registry", "", "release registry as owner/repo")
	pf.StringVar(&flagOS, "os", "", "target operating system (default: host)")
	pf.StringVar(&flagArch, "arch", "", "target architecture (default: host)")
	pf.StringVar(&flagLibc, "libc", "", "target libc, gnu or musl (linux only)")
	pf.BoolVar(&flagNoCache, "no-cache", false, "bypass the archive cache")
	pf.BoolVar(&flagPrerelease, "prerelease", false, "admit prerelease versions")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log output")
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUsage)
	}
}
