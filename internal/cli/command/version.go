package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tcpctl-go/internal/cli/output"
	"github.com/yndnr/tcpctl-go/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			flags, err := ParseGlobalFlags(c)
			if err != nil {
				return err
			}
			if flags.Output == output.FormatTable {
				fmt.Fprintln(c.App.Writer, buildinfo.String())
				return nil
			}
			return flags.Formatter().Format(c.App.Writer, buildinfo.Get())
		},
	}
}
