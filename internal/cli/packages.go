package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/crateindex/pkg/store"
)

// packagesCommand creates the packages command.
func (c *CLI) packagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "packages",
		Aliases: []string{"ls"},
		Short:   "List indexed packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			pkgs, err := e.runner.Packages(cmd.Context())
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				if pkgs == nil {
					pkgs = []*store.Package{}
				}
				return writeJSON(cmd.OutOrStdout(), pkgs)
			}

			p := newPrinter(cmd.OutOrStdout())
			if len(pkgs) == 0 {
				p.info("No packages indexed yet")
				p.detail("Index one with: crateindex fetch <crate>")
				return nil
			}
			for _, pkg := range pkgs {
				p.line(StyleTitle.Render(pkg.Key) + " " + StyleDim.Render("indexed "+ago(pkg.IndexedAt)))
				p.line("  " + counts(pkg.Counts))
				if len(pkg.Reexports) > 0 {
					p.detail("%s re-exports %s", iconArrow, strings.Join(pkg.Reexports, ", "))
				}
			}
			return nil
		},
	}
}

// removeCommand creates the remove command.
func (c *CLI) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <key>...",
		Aliases: []string{"rm"},
		Short:   "Remove packages and their unpacked sources",
		Example: `  crateindex remove serde-1.0.210`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			p := newPrinter(cmd.OutOrStdout())
			for _, key := range args {
				if err := e.runner.Remove(cmd.Context(), key); err != nil {
					return err
				}
				p.success("Removed %s", key)
			}
			return nil
		},
	}
}
