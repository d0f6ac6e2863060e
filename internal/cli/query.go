package cli

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/pipeline"
	"github.com/matzehuels/crateindex/pkg/pkgfs"
)

// Query commands take a crate reference: a bare name ("serde") or an exact
// key ("serde-1.0.210"). A crate that is not in the catalog is fetched
// first.

// showCommand creates the show command.
func (c *CLI) showCommand() *cobra.Command {
	var noSource bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a declaration and its source by identifier",
		Example: `  crateindex list serde traits '^Ser'
  crateindex show 3fa2c91b`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			shown, err := e.runner.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if noSource {
				shown.Source = nil
			}
			if c.flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), shown)
			}
			p := newPrinter(cmd.OutOrStdout())
			p.declaration(shown.Key, shown.Declaration)
			if shown.Source != nil {
				p.line("")
				p.excerpt(shown.Source)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSource, "no-source", false, "omit the source excerpt")
	return cmd
}

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "list <crate> <kind> [pattern]",
		Short: "List declarations of one kind, including re-exported crates",
		Long: fmt.Sprintf(`List the declarations of one kind in a crate and in the indexed crates it
re-exports. The optional pattern is a regular expression matched against
names, function signatures, alias targets and impl types.

Kinds: %s`, strings.Join(pipeline.KindNames(), ", ")),
		Example: `  crateindex list serde traits
  crateindex list tokio functions '^spawn'
  crateindex list anyhow impls 'Display'
  crateindex list serde traits -i`,
		Args: cobra.RangeArgs(2, 3),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return pipeline.KindNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := pipeline.ParseKind(args[1])
			if err != nil {
				return err
			}
			var pattern string
			if len(args) == 3 {
				pattern = args[2]
			}

			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			listing, err := e.runner.List(cmd.Context(), args[0], kind, pattern)
			if err != nil {
				return err
			}
			if interactive {
				return c.pick(cmd, e, listing)
			}
			if c.flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), listing)
			}
			printListing(newPrinter(cmd.OutOrStdout()), listing)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick a declaration to show from an interactive table")
	return cmd
}

// pick runs the declaration picker and shows the chosen entry.
func (c *CLI) pick(cmd *cobra.Command, e *env, l *pipeline.Listing) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return errors.New(errors.ErrCodeInvalidInput, "--interactive needs a terminal")
	}
	p := newPrinter(cmd.OutOrStdout())
	if len(l.Entries) == 0 {
		p.info("No %s declarations in %s", l.Kind, strings.Join(l.Packages, ", "))
		return nil
	}

	final, err := tea.NewProgram(NewDeclListModel(l), tea.WithContext(cmd.Context()), tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	m, ok := final.(DeclListModel)
	if !ok || m.Selected == nil {
		return nil
	}

	shown, err := e.runner.Show(cmd.Context(), m.Selected.Declaration.Header().ID)
	if err != nil {
		return err
	}
	if c.flags.jsonOut {
		return writeJSON(cmd.OutOrStdout(), shown)
	}
	p.declaration(shown.Key, shown.Declaration)
	if shown.Source != nil {
		p.line("")
		p.excerpt(shown.Source)
	}
	return nil
}

func printListing(p *printer, l *pipeline.Listing) {
	if len(l.Entries) == 0 {
		p.info("No %s declarations in %s", l.Kind, strings.Join(l.Packages, ", "))
		return
	}
	current := ""
	for _, e := range l.Entries {
		if e.Key != current {
			if current != "" {
				p.line("")
			}
			p.title(e.Key)
			current = e.Key
		}
		p.entry(e.Declaration)
	}
	p.line("")
	p.detail("%s in %s", plural(len(l.Entries), string(l.Kind)), plural(len(l.Packages), "package"))
}

// readCommand creates the read command.
func (c *CLI) readCommand() *cobra.Command {
	var start, end int

	cmd := &cobra.Command{
		Use:   "read <crate> <file>",
		Short: "Print lines of a source file",
		Long: fmt.Sprintf(`Print lines of a file inside a crate. Paths are relative to the crate root.
Without --end, at most %d lines are printed.`, pkgfs.DefaultWindow),
		Example: `  crateindex read serde src/lib.rs
  crateindex read serde src/de/mod.rs -s 120 -e 180`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ex, err := e.runner.Read(cmd.Context(), args[0], args[1], start, end)
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), ex)
			}
			p := newPrinter(cmd.OutOrStdout())
			p.title(ex.Key + " " + ex.File)
			p.excerpt(ex.Excerpt)
			return nil
		},
	}
	cmd.Flags().IntVarP(&start, "start", "s", 1, "first line (1-based)")
	cmd.Flags().IntVarP(&end, "end", "e", 0, "last line (inclusive)")
	return cmd
}

// readmeCommand creates the readme command.
func (c *CLI) readmeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "readme <crate>",
		Short: "Print a crate's README",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			rd, err := e.runner.Readme(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rd)
			}
			p := newPrinter(cmd.OutOrStdout())
			p.title(rd.Key + " " + rd.File)
			p.line(rd.Content)
			return nil
		},
	}
}

// filesCommand creates the files command.
func (c *CLI) filesCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "files <crate>",
		Short: "List the files of a crate",
		Long:  "List the files of a crate, skipping hidden files, target/ and paths ignored by the crate's .gitignore.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			fl, err := e.runner.Files(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), fl)
			}
			p := newPrinter(cmd.OutOrStdout())
			for _, f := range fl.Files {
				p.line(f)
			}
			if fl.Truncated {
				p.warning("showing the first %d files; raise --limit for more", len(fl.Files))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum files to list (0 = all)")
	return cmd
}

// searchCommand creates the search command.
func (c *CLI) searchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "search <crate> <pattern>",
		Short:   "Search the Rust sources of a crate with a regular expression",
		Example: `  crateindex search serde 'fn deserialize_\w+'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.runner.Search(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			p := newPrinter(cmd.OutOrStdout())
			if len(res.Matches) == 0 {
				p.info("No matches in %s", res.Key)
				return nil
			}
			for _, m := range res.Matches {
				p.line(StyleDim.Render(fmt.Sprintf("%s:%d:", m.File, m.Line)) + " " + strings.TrimSpace(m.Text))
			}
			if res.Truncated {
				p.warning("stopped after %d matches; raise --limit for more", len(res.Matches))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", pipeline.DefaultSearchLimit, "maximum matches")
	return cmd
}

// latestCommand creates the latest command.
func (c *CLI) latestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <crate>",
		Short: "Print the latest version of a crate on crates.io",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			rel, err := e.runner.Latest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rel)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rel.LatestVersion)
			p := newPrinter(cmd.OutOrStdout())
			if rel.Description != "" {
				p.detail("%s", strings.TrimSpace(rel.Description))
			}
			if rel.Repository != "" {
				p.keyValue("repository", rel.Repository)
			}
			if rel.Downloads > 0 {
				p.keyValue("downloads", humanize.Comma(int64(rel.Downloads)))
			}
			return nil
		},
	}
}
