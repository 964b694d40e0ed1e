package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/lsp"
)

func newLSPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Serve the extractions as LSP code actions on stdin/stdout",
		Long: `lsp runs a language server offering "Extract field" and "Extract
parameter" code actions. The workspace root comes from the client's
initialize request; open documents take precedence over the files on disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := lsp.NewServer(a.cfg, a.logger, Version)
			return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
