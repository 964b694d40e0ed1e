// Command goextract-lsp is a language server offering the goextract
// extractions as code actions. It accepts the flags of "goextract lsp".
package main

import (
	"os"

	"github.com/mamaar/goextract/internal/cli"
)

func main() {
	os.Exit(cli.Execute(append([]string{"lsp"}, os.Args[1:]...)))
}
