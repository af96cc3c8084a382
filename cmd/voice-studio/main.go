// main package for the voice-studio command
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli{}
	err := errors.Join(newRootCmd(app).ExecuteContext(ctx), app.close())

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "voice-studio exited with error: %v\n", err)
		os.Exit(1)
	}
}
