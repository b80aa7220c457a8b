package main

import (
	"os"

	"loan-intake/cmd/docctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
