package main

import (
	"os"

	"github.com/mamaar/goextract/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
