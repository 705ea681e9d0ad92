// Command storefleetctl is a command-line client for the storefleet API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storefleet.dev/storefleet/cmd/storefleetctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
