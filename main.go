package main

import (
	"os"

	"github.com/latecast/latecast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
