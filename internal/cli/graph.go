package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/render/nodelink"
)

const (
	formatDOT  = "dot"
	formatSVG  = "svg"
	formatJSON = "json"
)

// graphCommand creates the graph command, which draws the re-export graph
// of a crate.
func (c *CLI) graphCommand() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "graph <crate>",
		Short: "Draw the re-export graph of a crate",
		Long: `Draw the graph of indexed crates reachable from a crate over re-exports.
The walk honors --max-depth and --max-packages. Output is Graphviz DOT by
default; --format svg renders it in-process.`,
		Example: `  crateindex graph tokio | dot -Tpng > tokio.png
  crateindex graph tokio --format svg -o tokio.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.flags.jsonOut {
				format = formatJSON
			}
			switch format {
			case formatDOT, formatSVG, formatJSON:
			default:
				return errors.New(errors.ErrCodeInvalidInput, "unknown format %q (must be one of: dot, svg, json)", format)
			}

			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			g, err := e.runner.Graph(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", output)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case formatJSON:
				err = writeJSON(w, g)
			case formatDOT:
				_, err = fmt.Fprint(w, nodelink.ToDOT(g.Graph, nodelink.Options{Counts: g.Counts}))
			case formatSVG:
				var svg []byte
				if svg, err = nodelink.RenderSVG(cmd.Context(), nodelink.ToDOT(g.Graph, nodelink.Options{Counts: g.Counts})); err == nil {
					_, err = w.Write(svg)
				}
			}
			if err != nil {
				return err
			}
			if output != "" {
				p := newPrinter(cmd.OutOrStdout())
				p.success("Wrote %s graph of %s", format, g.Root)
				p.detail("%s %s (%s, %s)", iconArrow, output, plural(len(g.Keys), "package"), plural(len(g.Edges), "edge"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatDOT, "output format: dot, svg or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
