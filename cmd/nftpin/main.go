package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}
	// Interrupting `logs -f` cancels its context; that is not a failure worth printing.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "nftpin:", err)
	}
	os.Exit(1)
}
