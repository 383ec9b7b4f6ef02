package main

import (
	"os"

	"github.com/parnexcodes/pairlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
