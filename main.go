// Robomongo connection engine - opens MongoDB sessions, optionally
// through native SSH tunnels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xiaoli123/robomongo/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "robomongo: %v\n", err)
		os.Exit(1)
	}
}
