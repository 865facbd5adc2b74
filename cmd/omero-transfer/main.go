package main

import (
	"os"

	"github.com/ome/omero-cli-transfer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
