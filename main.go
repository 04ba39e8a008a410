package main

import (
	"fmt"
	"os"

	"github.com/keyturn/keyturn/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keyturn:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
