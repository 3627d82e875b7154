package main

import (
	"os"

	"github.com/FLOX-Foundation/floxlog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
