// Command swizzle compiles CUE class hierarchies, intercepts their methods
// and records what ran.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/swizzle/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "swizzle:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
