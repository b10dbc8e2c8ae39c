package main

import (
	"os"

	"github.com/sammck-go/chanbridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
