package main

import (
	"fmt"
	"os"

	"github.com/catherinevee/integration-auditor/cmd/integration-auditor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCodeFor(err))
	}
}
