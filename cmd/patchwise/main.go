package main

import (
	"os"

	"github.com/dshills/patchwise/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
