package main

import (
	"fmt"
	"os"

	"github.com/rony4d/go-score/cmd/score/launcher"
)

func main() {
	// Hand the full argument list to the launcher; it blocks until the
	// server stops.
	if err := launcher.Launch(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
