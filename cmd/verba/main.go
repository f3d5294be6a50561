package main

import (
	"os"

	"github.com/GunnyMarc/verba/cmd/verba/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
