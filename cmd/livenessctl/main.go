package main

import (
	"os"

	"liveness/cmd/livenessctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
