// Command goextract-mcp serves the goextract tools over MCP on stdio. It
// accepts the flags of "goextract serve".
package main

import (
	"os"

	"github.com/mamaar/goextract/internal/cli"
)

func main() {
	os.Exit(cli.Execute(append([]string{"serve"}, os.Args[1:]...)))
}
