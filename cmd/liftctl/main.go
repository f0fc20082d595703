package main

import (
	"fmt"
	"os"

	"github.com/PortNumber53/liftx/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
