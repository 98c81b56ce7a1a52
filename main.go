package main

import (
	"os"

	"github.com/git-create-devben/velite/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
