package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/calimero-network/MeroSign/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
