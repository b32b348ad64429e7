package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embedpg/embedpg"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List all published versions",
	Long:  `List every version the release registry publishes, newest first.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		versions, err := embedpg.Versions(cmd.Context(), buildOptions())
		if err != nil {
			fail(err)
		}
		for _, v := range versions {
			fmt.Println(v)
		}
	},
}
