package main

import (
	"os"

	"github.com/neoxalle/nx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
