package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/crateindex/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry metadata cache",
		Long: `Manage the registry metadata cache. Version lookups against crates.io are
cached on disk for an hour; downloaded crate sources live in the data
directory and are removed with "crateindex remove".`,
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear cached registry metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			p := newPrinter(cmd.OutOrStdout())

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				p.info("Cache is empty")
				return nil
			}
			entries, size := dirUsage(dir)

			fc, err := cache.NewFileCache(dir)
			if err != nil {
				return err
			}
			if err := fc.Clear(); err != nil {
				return err
			}
			p.success("Cleared %d cached entries (%s)", entries, humanize.Bytes(uint64(size)))
			p.detail("Directory: %s", dir)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache and data directory paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			data, err := c.dataDir()
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.keyValue("cache", dir)
			p.keyValue("data", data)
			return nil
		},
	}
}

// dirUsage counts the regular files below dir and their total size.
func dirUsage(dir string) (files int, size int64) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}
