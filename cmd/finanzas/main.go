package main

import (
	"os"

	"finanzas/internal/cli"
	"finanzas/internal/commands"
)

func main() {
	cli.LoadEnvFile()

	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
