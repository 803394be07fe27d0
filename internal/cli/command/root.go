package command

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/tcpctl-go/internal/cli/config"
	"github.com/yndnr/tcpctl-go/internal/cli/connection"
	"github.com/yndnr/tcpctl-go/internal/cli/output"
	"github.com/yndnr/tcpctl-go/internal/core/domain"
	"github.com/yndnr/tcpctl-go/internal/infra/buildinfo"
	"github.com/yndnr/tcpctl-go/internal/infra/shutdown"
	"github.com/yndnr/tcpctl-go/internal/telemetry/logger"
)

// exit ends the process. Tests replace it.
var exit = os.Exit

// Env is the process state shared by every command invocation,
// including each line typed at the REPL. Config, Manager and Logger
// are filled in by the first invocation.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	ConfigPath string
	Config     *config.CLIConfig
	Manager    *connection.Manager
	Logger     logger.Logger

	// Shutdown tears the registry down on SIGTERM, SIGHUP or Close.
	Shutdown *shutdown.Handler

	managerOpts []connection.Option
	interactive bool
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithIO sets the standard streams.
func WithIO(in io.Reader, out, errOut io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdin = in
		e.Stdout = out
		e.Stderr = errOut
	}
}

// WithManagerOptions passes options to the connection manager when it
// is built.
func WithManagerOptions(opts ...connection.Option) EnvOption {
	return func(e *Env) {
		e.managerOpts = append(e.managerOpts, opts...)
	}
}

// NewEnv creates an environment bound to the process streams.
func NewEnv(opts ...EnvOption) *Env {
	e := &Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Shutdown: shutdown.NewHandler(shutdown.DefaultTimeout,
			shutdown.WithSignals(syscall.SIGTERM, syscall.SIGHUP),
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// init loads the configuration and builds the registry. Later calls
// keep what the first one built.
func (e *Env) init(c *cli.Context) error {
	if e.Manager != nil {
		return nil
	}

	path := c.String("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path, flagOverrides(c))
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: e.Stderr,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	logger.SetDefault(log)

	opts := append([]connection.Option{connection.WithLogger(log)}, e.managerOpts...)

	e.ConfigPath = config.ExpandPath(path)
	e.Config = cfg
	e.Logger = log
	e.Manager = connection.NewManager(cfg, opts...)
	e.Shutdown.OnShutdown(e.Manager.Teardown)
	return nil
}

// Close closes every connection still open. Only the first call, or
// the first shutdown signal, does any work.
func (e *Env) Close() error {
	return e.Shutdown.Shutdown()
}

// spinner returns a spinner on stderr, active only when enabled in the
// configuration and stderr is a terminal.
func (e *Env) spinner(message string) *output.Spinner {
	enabled := e.Config != nil && e.Config.UI.Spinner && isTerminal(e.Stderr)
	return output.NewSpinner(e.Stderr, message, enabled)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// App creates the CLI application. Without a command it starts the
// REPL, which runs each line through a fresh App sharing env.
func App(env *Env) *cli.App {
	return &cli.App{
		Name:      "tcpctl",
		Usage:     "Open, list and close raw TCP client connections",
		Version:   buildinfo.Get().Version,
		Reader:    env.Stdin,
		Writer:    env.Stdout,
		ErrWriter: env.Stderr,
		Flags:     globalFlags(),
		Commands: []*cli.Command{
			OpenCommand(),
			CloseCommand(),
			ListCommand(),
			SendCommand(),
			RecvCommand(),
			StatsCommand(),
			ConfigCommand(),
			VersionCommand(),
			REPLCommand(),
		},
		Metadata: map[string]any{
			"env": env,
		},
		Before: func(c *cli.Context) error {
			if err := env.init(c); err != nil {
				return err
			}
			c.App.Metadata["connMgr"] = env.Manager
			return nil
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown command %q", c.Args().First()))
			}
			return replAction(c)
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file",
			EnvVars: []string{config.EnvPrefix + "CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:  "family",
			Usage: "Default address family for open: ipv4, ipv6",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
	}
}

// overrideKeys maps global flags to configuration keys.
var overrideKeys = map[string]string{
	"output":     "output",
	"family":     "family",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// flagOverrides collects the global flags given on the command line as
// configuration overrides.
func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	for flag, key := range overrideKeys {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	return overrides
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Output output.Format
	Wide   bool
}

// ParseGlobalFlags resolves the output settings of one invocation. An
// --output flag wins over the configured default.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	name := ""
	if env := getEnv(c); env != nil && env.Config != nil {
		name = env.Config.Output
	}
	if c.IsSet("output") {
		name = c.String("output")
	}

	format, err := output.ParseFormat(name)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails(err.Error())
	}
	return &GlobalFlags{
		Output: format,
		Wide:   c.Bool("wide"),
	}, nil
}

// Formatter returns the formatter for the invocation's output settings.
func (f *GlobalFlags) Formatter() output.Formatter {
	return output.NewFormatter(f.Output, f.Wide)
}

func getEnv(c *cli.Context) *Env {
	if env, ok := c.App.Metadata["env"].(*Env); ok {
		return env
	}
	return nil
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata["connMgr"].(*connection.Manager); ok {
		return mgr
	}
	return nil
}

// PrintError prints an error message to w.
func PrintError(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "error: "+format+"\n", args...)
}
