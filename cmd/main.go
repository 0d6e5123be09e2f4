package main

import (
	"os"

	"github.com/fyerfyer/multirep-qa/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
