package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Cancellation is a clean shutdown, not worth a final error line.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "distill:", err)
		}
		os.Exit(1)
	}
}
