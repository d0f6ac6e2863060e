package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/crateindex/pkg/crawl"
	"github.com/matzehuels/crateindex/pkg/observability"
)

// fetchCommand creates the fetch command, which crawls a crate and the
// crates it re-exports into the catalog.
func (c *CLI) fetchCommand() *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "fetch <crate>",
		Short: "Download and index a crate and its re-exported crates",
		Long: `Download a crate from crates.io, extract its declarations and store them in
the catalog. Crates it re-exports (pub use of a declared dependency) are
indexed too, breadth-first, up to --max-depth levels and --max-packages
packages. Packages already in the catalog are not downloaded again.`,
		Example: `  crateindex fetch serde
  crateindex fetch tokio -V 1.38.0 --max-depth 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFetch(cmd.Context(), cmd, args[0], version)
		},
	}
	cmd.Flags().StringVarP(&version, "version", "V", "", "exact version (default: latest)")
	return cmd
}

func (c *CLI) runFetch(ctx context.Context, cmd *cobra.Command, name, version string) error {
	logger := loggerFromContext(ctx)
	var spin *Spinner
	if !c.flags.jsonOut && isTerminal(os.Stderr) && logger.GetLevel() > log.DebugLevel {
		spin = newSpinner(ctx, os.Stderr, "Resolving "+name)
		// info lines would tear the spinner line apart
		ctx = withLogger(ctx, newLogger(os.Stderr, log.WarnLevel))
		observability.SetCrawlHooks(&spinnerHooks{spin: spin})
		defer observability.SetCrawlHooks(observability.NoopCrawlHooks{})
		spin.Start()
		defer spin.Stop()
	}

	e, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	prog := newProgress(logger)
	sum, err := e.runner.Fetch(ctx, name, version)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}
	prog.done("crawl finished", "run", sum.RunID, "indexed", len(sum.Indexed), "skipped", len(sum.Skipped))

	if c.flags.jsonOut {
		return writeJSON(cmd.OutOrStdout(), sum)
	}
	printSummary(newPrinter(cmd.OutOrStdout()), sum)
	return nil
}

func printSummary(p *printer, sum *crawl.Summary) {
	switch {
	case len(sum.Indexed) > 0:
		p.success("Indexed %s in %d %s", plural(len(sum.Indexed), "package"), sum.Waves, pluralWord(sum.Waves, "wave"))
	case len(sum.AlreadyIndexed) > 0:
		p.success("%s is already indexed", sum.Seed)
	default:
		p.info("Nothing indexed")
	}
	for _, o := range sum.Indexed {
		line := fmt.Sprintf("%s %s %s", iconArrow, o.Key, StyleDim.Render(fmt.Sprintf("%d declarations, %d files", o.Declarations, o.Files)))
		if o.SkippedFiles > 0 {
			line += StyleWarning.Render(fmt.Sprintf(" (%d files unparsed)", o.SkippedFiles))
		}
		p.line("  " + line)
	}
	for _, key := range sum.AlreadyIndexed {
		p.detail("%s already indexed", key)
	}
	for _, o := range sum.Skipped {
		p.warning("skipped %s: %s", o.Name, o.Error)
	}
	if sum.Truncated {
		p.warning("crawl stopped at the depth or package limit; raise --max-depth or --max-packages to index more")
	}
}

// spinnerHooks reports crawl progress on a spinner.
type spinnerHooks struct {
	observability.NoopCrawlHooks
	spin *Spinner
}

func (h *spinnerHooks) OnWaveStart(_ context.Context, _ string, wave, pending int) {
	h.spin.Update(fmt.Sprintf("Wave %d: resolving %s", wave, plural(pending, "package")))
}

func (h *spinnerHooks) OnPackageIndexed(_ context.Context, _ string, key string, decls int) {
	h.spin.Update(fmt.Sprintf("Indexed %s (%d declarations)", key, decls))
}

func plural(n int, word string) string {
	return fmt.Sprintf("%d %s", n, pluralWord(n, word))
}

func pluralWord(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
