package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/crateindex/internal/api"
)

// serveCommand creates the serve command, which exposes the catalog over
// HTTP until interrupted.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over an HTTP JSON API",
		Long: `Serve the catalog over an HTTP JSON API. Queries about crates that are not
indexed yet fetch them, exactly like the CLI commands do. Use --redis-url to
share registry metadata between several instances.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			logger := loggerFromContext(cmd.Context())
			logger.Info("catalog opened", "db", e.store.File())
			return api.New(e.runner, logger).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", api.DefaultAddr, "listen address")
	return cmd
}
