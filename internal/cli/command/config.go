package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tcpctl-go/internal/cli/config"
	"github.com/yndnr/tcpctl-go/internal/cli/output"
	"github.com/yndnr/tcpctl-go/internal/core/domain"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShow,
			},
			{
				Name:   "path",
				Usage:  "Show the configuration file path",
				Action: configPath,
			},
			{
				Name:  "init",
				Usage: "Write the default configuration to the configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing file",
					},
				},
				Action: configInit,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}

	// Nested settings read better as YAML than as a table.
	if flags.Output == output.FormatTable {
		flags.Output = output.FormatYAML
	}
	return flags.Formatter().Format(c.App.Writer, getEnv(c).Config)
}

func configPath(c *cli.Context) error {
	env := getEnv(c)
	_, err := os.Stat(env.ConfigPath)
	switch {
	case err == nil:
		fmt.Fprintln(c.App.Writer, env.ConfigPath)
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(c.App.Writer, "%s (not found, using defaults)\n", env.ConfigPath)
	default:
		return err
	}
	return nil
}

func configInit(c *cli.Context) error {
	env := getEnv(c)
	if _, err := os.Stat(env.ConfigPath); err == nil && !c.Bool("force") {
		return domain.ErrInvalidArgument.WithDetails(
			fmt.Sprintf("%s already exists, use --force to overwrite", env.ConfigPath))
	}

	if err := config.Save(config.Default(), env.ConfigPath); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", env.ConfigPath)
	return nil
}
