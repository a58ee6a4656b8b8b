package main

import (
	"os"

	"github.com/bypabloc/portfolio-db/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
