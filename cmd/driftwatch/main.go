package main

import (
	"os"

	"github.com/mehmetkoksal-w/driftwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
