package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embedpg/embedpg/internal/cache"
	"github.com/embedpg/embedpg/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the archive cache",
	Long:  `Inspect or clear the cache of verified distribution archives.`,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache statistics",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fail(err)
		}
		info, err := store.Stat()
		if err != nil {
			fail(err)
		}
		fmt.Printf("Cached archives: %d\n", info.EntryCount)
		fmt.Printf("Total size:      %s\n", formatSize(info.TotalSize))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached archives",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fail(err)
		}
		if err := store.Clear(); err != nil {
			fail(err)
		}
		fmt.Println("Archive cache cleared")
	},
}

func openStore() (*cache.Store, error) {
	cfg, err := config.Default()
	if err != nil {
		return nil, err
	}
	return cache.NewStore(cfg.CacheDir), nil
}

func formatSize(b int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/gb)
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/mb)
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/kb)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func init() {
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
