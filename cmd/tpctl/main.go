package main

import (
	"os"

	"github.com/trailpoint-systems/trailpoint/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
