package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dealpop/dashboard/internal/cli"
)

// set by -ldflags "-X main.version=..."
var version = "1.0.0"

func main() {
	if err := cli.NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
