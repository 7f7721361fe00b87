package main

import (
	"context"
	"fmt"
	"os"

	"costmanager/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "costs: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
