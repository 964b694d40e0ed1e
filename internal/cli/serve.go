package cli

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/mcp"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the extractions as MCP tools on stdin/stdout",
		Long: `serve runs a Model Context Protocol server on stdin/stdout. The module
given by --root is loaded up front when the flag is set; clients can load
another one with the load_program tool.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			srv := mcp.NewServer(a.cfg, a.logger)
			defer srv.Close()

			if cmd.Flags().Changed("root") {
				if _, err := srv.Load(ctx, a.root); err != nil {
					return err
				}
			}
			return srv.Run(ctx, &mcpsdk.StdioTransport{}, Version)
		},
	}
}
