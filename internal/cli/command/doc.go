// Package command provides the tcpctl command definitions.
//
// Commands are built with urfave/cli/v2. One Env holds the session
// registry for the life of the process, so the same command set serves
// single-command mode and every line typed at the REPL:
//
//   - root.go: App, global flags, process environment
//   - tcp.go: open, close, list, send, recv
//   - stats.go: connection counters
//   - config.go: config show, path, init
//   - version.go: build information
//   - repl.go: interactive shell and config reload
package command
