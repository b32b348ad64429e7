package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embedpg/embedpg"
)

var flagDest string

var installCmd = &cobra.Command{
	Use:   "install [version]",
	Short: "Download, verify and extract a distribution",
	Long: `Install a PostgreSQL binary distribution into a local directory.

The version argument accepts "latest" (the default), a major line like
"17", a minor line like "17.2", or an exact version like "17.2.0".

Examples:
  embedpg install
  embedpg install 17
  embedpg install 17.2.0 --dest /opt/postgresql`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		spec := embedpg.Latest
		if len(args) == 1 {
			spec = args[0]
		}

		// An empty --dest lets Install place the tree under
		// <home>/versions/<resolved version> without a second index fetch.
		inst, err := embedpg.Install(cmd.Context(), spec, flagDest, buildOptions())
		if err != nil {
			fail(err)
		}

		fmt.Printf("Installed PostgreSQL %s (%s) to %s\n", inst.Version, inst.Platform, inst.Dir)
		fmt.Printf("Binaries: %s\n", inst.BinDir)
	},
}

func init() {
	installCmd.Flags().StringVar(&flagDest, "dest", "", "destination directory (default ~/.embedpg/versions/<version>)")
}
