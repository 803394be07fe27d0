package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tcpctl-go/internal/cli/config"
	"github.com/yndnr/tcpctl-go/internal/cli/repl"
	"github.com/yndnr/tcpctl-go/internal/core/domain"
	"github.com/yndnr/tcpctl-go/internal/infra/buildinfo"
	"github.com/yndnr/tcpctl-go/internal/infra/confloader"
	"github.com/yndnr/tcpctl-go/internal/telemetry/logger"
)

// REPLCommand returns the repl command. Running tcpctl without a
// command does the same.
func REPLCommand() *cli.Command {
	return &cli.Command{
		Name:   "repl",
		Usage:  "Start an interactive shell",
		Action: replAction,
	}
}

func replAction(c *cli.Context) error {
	env := getEnv(c)
	if env.interactive {
		return domain.ErrInvalidArgument.WithDetails("already in interactive mode")
	}
	env.interactive = true
	defer func() { env.interactive = false }()

	history := repl.NewHistory(env.Config.History.File, env.Config.History.MaxSize)
	if err := history.Load(); err != nil {
		env.Logger.Warn("failed to load history", "file", env.Config.History.File, "error", err)
	}
	defer func() {
		if err := history.Save(); err != nil {
			env.Logger.Warn("failed to save history", "file", env.Config.History.File, "error", err)
		}
	}()

	stopWatch := env.watchConfig()
	defer stopWatch()

	fmt.Fprintf(c.App.Writer, "tcpctl %s interactive mode. Type 'help' for commands, 'exit' to quit.\n",
		buildinfo.Get().Version)

	r := repl.New(env.execLine,
		repl.WithIO(env.Stdin, env.Stdout),
		repl.WithHistory(history),
		repl.WithLogger(env.Logger),
		repl.WithInterruptTrap(env.forceQuit),
	)
	return r.Run(c.Context)
}

// forceQuit ends the process from a REPL stuck in a command that
// ignores cancellation. Tracked connections are closed first.
func (e *Env) forceQuit() {
	fmt.Fprintln(e.Stderr, "interrupted")
	if err := e.Close(); err != nil {
		e.Logger.Warn("teardown failed", "error", err)
	}
	exit(130)
}

// execLine runs one REPL line as a full command line.
func (e *Env) execLine(ctx context.Context, args []string) error {
	app := App(e)
	return app.RunContext(ctx, append([]string{app.Name}, args...))
}

// watchConfig applies log level changes made to the config file while
// the REPL runs. Other settings take effect on the next start.
func (e *Env) watchConfig() (stop func()) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(e.Logger))
	if err != nil {
		e.Logger.Warn("config watcher unavailable", "error", err)
		return func() {}
	}
	if err := w.Watch(e.ConfigPath); err != nil {
		_ = w.Stop()
		return func() {}
	}

	w.OnChange(e.reloadLogLevel)
	w.StartAsync()
	return func() { _ = w.Stop() }
}

func (e *Env) reloadLogLevel(path string) {
	cfg, err := config.Load(path, nil)
	if err != nil {
		e.Logger.Warn("ignoring invalid config change", "path", path, "error", err)
		return
	}
	if cfg.Log.Level != logger.GetLevel() {
		logger.SetLevel(cfg.Log.Level)
		e.Logger.Info("log level changed", "level", cfg.Log.Level)
	}
}
