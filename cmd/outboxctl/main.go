// Command outboxctl queues orders while the back-office server is offline and
// replays them once it is reachable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/waterdesk/outbox/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "outboxctl:", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
