package command

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tcpctl-go/internal/cli/output"
	"github.com/yndnr/tcpctl-go/internal/core/domain"
	"github.com/yndnr/tcpctl-go/internal/core/service"
)

// Receive defaults.
const (
	DefaultRecvTimeout = 5 * time.Second
	DefaultRecvMax     = 4096
)

// OpenCommand returns the open command.
func OpenCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open a TCP connection and print its handle",
		ArgsUsage: "HOST [PORT]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "ipv6",
				Aliases: []string{"6"},
				Usage:   "Connect over IPv6",
			},
			&cli.BoolFlag{
				Name:    "ipv4",
				Aliases: []string{"4"},
				Usage:   "Connect over IPv4",
			},
			&cli.BoolFlag{
				Name:    "managed",
				Aliases: []string{"m"},
				Usage:   "Mark the connection as owned by another protocol (close needs -f)",
			},
		},
		Action: openAction,
	}
}

// CloseCommand returns the close command.
func CloseCommand() *cli.Command {
	return &cli.Command{
		Name:      "close",
		Usage:     "Close a connection by handle, or all of them",
		ArgsUsage: "HANDLE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Close a managed connection",
			},
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Close every connection, managed or not",
			},
		},
		Action: closeAction,
	}
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List open connections",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "numeric",
				Aliases: []string{"n"},
				Usage:   "Show peer addresses without reverse lookup",
			},
		},
		Action: listAction,
	}
}

// SendCommand returns the send command.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Write a line to a connection",
		ArgsUsage: "HANDLE TEXT...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "raw",
				Aliases: []string{"r"},
				Usage:   "Do not append CRLF",
			},
		},
		Action: sendAction,
	}
}

// RecvCommand returns the recv command.
func RecvCommand() *cli.Command {
	return &cli.Command{
		Name:      "recv",
		Usage:     "Read pending data from a connection",
		ArgsUsage: "HANDLE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   DefaultRecvTimeout,
				Usage:   "How long to wait for data (0 waits forever)",
			},
			&cli.IntFlag{
				Name:  "max",
				Value: DefaultRecvMax,
				Usage: "Maximum bytes to read",
			},
		},
		Action: recvAction,
	}
}

// openResult is the structured output of open.
type openResult struct {
	Host      string `json:"host" yaml:"host"`
	Address   string `json:"address" yaml:"address"`
	Port      uint16 `json:"port" yaml:"port"`
	Handle    int    `json:"handle" yaml:"handle"`
	Managed   bool   `json:"managed" yaml:"managed"`
	SessionID string `json:"session_id" yaml:"session_id"`
}

func openAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return domain.ErrMissingArgument.WithDetails("HOST")
	}
	if c.NArg() > 2 {
		return domain.ErrInvalidArgument.WithDetails("usage: open [-6] [-m] HOST [PORT]")
	}

	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	env := getEnv(c)
	mgr := GetConnectionManager(c)

	req := &service.OpenRequest{
		Host:   c.Args().Get(0),
		Family: mgr.Config().AddressFamily(),
	}
	if c.NArg() == 2 {
		if req.Port, err = parsePort(c.Args().Get(1)); err != nil {
			return err
		}
	}
	switch {
	case c.Bool("ipv6"):
		req.Family = domain.FamilyIPv6
	case c.Bool("ipv4"):
		req.Family = domain.FamilyIPv4
	}
	if c.Bool("managed") {
		req.Flags |= domain.FlagManaged
	}

	// SIGINT is left at its default outside the REPL. A blocking connect
	// is not interrupted by a trapped signal, only by process death.
	spinner := env.spinner(fmt.Sprintf("Connecting to %s...", req.Host))
	spinner.Start()
	sess, err := mgr.Open(c.Context, req)
	spinner.Stop()
	if err != nil {
		return err
	}

	if flags.Output == output.FormatTable {
		fmt.Fprintf(c.App.Writer, "%s:%d is now on handle %d\n", req.Host, sess.Peer.Port(), sess.Handle)
		return nil
	}
	return flags.Formatter().Format(c.App.Writer, openResult{
		Host:      req.Host,
		Address:   sess.Peer.Addr().String(),
		Port:      sess.Peer.Port(),
		Handle:    sess.Handle,
		Managed:   sess.IsProtected(),
		SessionID: sess.ID,
	})
}

func closeAction(c *cli.Context) error {
	mgr := GetConnectionManager(c)

	if c.Bool("all") {
		if c.NArg() > 0 {
			return domain.ErrInvalidArgument.WithDetails("--all takes no handle")
		}
		mgr.TeardownAll(c.Context)
		return nil
	}

	if c.NArg() < 1 {
		return domain.ErrMissingArgument.WithDetails("HANDLE (or --all)")
	}
	if c.NArg() > 1 {
		return domain.ErrInvalidArgument.WithDetails("usage: close [-f] HANDLE")
	}
	h, err := parseHandle(c.Args().Get(0))
	if err != nil {
		return err
	}
	return mgr.CloseByHandle(c.Context, h, c.Bool("force"))
}

// sessionList renders list entries as a table.
type sessionList []service.ListEntry

// Table implements output.Tabler.
func (l sessionList) Table(wide bool) *output.Table {
	t := &output.Table{}
	if wide {
		t.SetHeaders("NAME", "ADDRESS", "PORT", "HANDLE", "MANAGED", "STATE", "SESSION ID")
	} else {
		t.SetHeaders("NAME", "PORT", "HANDLE", "MANAGED")
	}

	for _, e := range l {
		managed := "no"
		if e.Protected {
			managed = "yes"
		}
		port := strconv.Itoa(int(e.Port))
		handle := strconv.Itoa(e.Handle)
		if wide {
			t.AddRow(e.Name, e.Address, port, handle, managed, e.State, e.SessionID)
		} else {
			t.AddRow(e.Name, port, handle, managed)
		}
	}
	return t
}

func listAction(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}

	var opts []service.ListOption
	if c.Bool("numeric") {
		opts = append(opts, service.Numeric())
	}
	entries := GetConnectionManager(c).ListAll(c.Context, opts...)
	return flags.Formatter().Format(c.App.Writer, sessionList(entries))
}

// ioResult is the structured output of send and recv.
type ioResult struct {
	Handle int    `json:"handle" yaml:"handle"`
	Bytes  int    `json:"bytes" yaml:"bytes"`
	Data   string `json:"data,omitempty" yaml:"data,omitempty"`
}

func sendAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return domain.ErrMissingArgument.WithDetails("HANDLE")
	}
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	h, err := parseHandle(c.Args().Get(0))
	if err != nil {
		return err
	}

	payload := strings.Join(c.Args().Slice()[1:], " ")
	if !c.Bool("raw") {
		payload += "\r\n"
	}

	n, err := GetConnectionManager(c).Send(c.Context, h, []byte(payload))
	if err != nil {
		return err
	}

	if flags.Output == output.FormatTable {
		fmt.Fprintf(c.App.Writer, "%d bytes written to handle %d\n", n, h)
		return nil
	}
	return flags.Formatter().Format(c.App.Writer, ioResult{Handle: h, Bytes: n})
}

func recvAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return domain.ErrMissingArgument.WithDetails("HANDLE")
	}
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	h, err := parseHandle(c.Args().Get(0))
	if err != nil {
		return err
	}
	if c.Duration("timeout") < 0 {
		return domain.ErrInvalidArgument.WithDetails("timeout must not be negative")
	}

	data, err := GetConnectionManager(c).Receive(c.Context, h, c.Int("max"), c.Duration("timeout"))
	if err != nil {
		return err
	}

	if flags.Output == output.FormatTable {
		w := c.App.Writer
		if _, err := w.Write(data); err != nil {
			return err
		}
		if data[len(data)-1] != '\n' {
			fmt.Fprintln(w)
		}
		return nil
	}
	return flags.Formatter().Format(c.App.Writer, ioResult{Handle: h, Bytes: len(data), Data: string(data)})
}

// parsePort accepts a port number or a TCP service name.
func parsePort(s string) (uint16, error) {
	port, err := net.LookupPort("tcp", s)
	if err != nil || port < 1 || port > 65535 {
		return 0, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("invalid port %q", s))
	}
	return uint16(port), nil
}

func parseHandle(s string) (int, error) {
	h, err := strconv.Atoi(s)
	if err != nil || h < 0 {
		return 0, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("invalid handle %q", s))
	}
	return h, nil
}
