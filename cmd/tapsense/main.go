// Package main is the tapsense command.
package main

import (
	"fmt"
	"os"

	"go.viam.com/tapsense/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		//nolint:errcheck
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
