package main

import (
	"context"
	"os"

	"github.com/yndnr/tcpctl-go/internal/cli/command"
)

func main() {
	os.Exit(run())
}

func run() int {
	env := command.NewEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGTERM and SIGHUP close every connection, then end the process.
	// The teardown may run while the main goroutine is blocked in a
	// connect; session fields are shared through the table lock.
	// SIGINT keeps its default action.
	go func() {
		_ = env.Shutdown.Wait(ctx)
		if ctx.Err() == nil {
			os.Exit(1)
		}
	}()

	err := command.App(env).RunContext(ctx, os.Args)
	cancel()
	if cerr := env.Close(); cerr != nil && err == nil {
		err = cerr
	}

	if err != nil {
		command.PrintError(os.Stderr, "%v", err)
		return 1
	}
	return 0
}
