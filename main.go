package main

import (
	"os"

	"github.com/smallnest/taskhub/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
