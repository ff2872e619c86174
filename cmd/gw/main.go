package main

import (
	"os"

	"github.com/glimmerweave/gw/cmd/gw/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
