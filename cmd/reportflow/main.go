package main

import (
	"context"
	"fmt"
	"os"

	"github.com/drblury/reportflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "reportflow:", err)
		os.Exit(1)
	}
}
