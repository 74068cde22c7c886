package main

import (
	"os"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
