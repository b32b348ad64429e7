package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embedpg/embedpg"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [version]",
	Short: "Show the concrete version a specifier selects",
	Long: `Resolve a version specifier against the release registry without
downloading anything.

Examples:
  embedpg resolve
  embedpg resolve 17
  embedpg resolve 17.2`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		spec := embedpg.Latest
		if len(args) == 1 {
			spec = args[0]
		}

		resolved, err := embedpg.Resolve(cmd.Context(), spec, buildOptions())
		if err != nil {
			fail(err)
		}
		fmt.Println(resolved)
	},
}
