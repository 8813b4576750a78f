package main

import (
	"fmt"
	"os"

	"github.com/recipe-arbiter/arbiter/src/arbiter/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiter: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}
