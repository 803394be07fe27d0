// Package repl provides interactive mode for tcpctl.
//
//   - repl.go: main loop and dispatch to the command executor
//   - split.go: quote-aware line splitting
//   - completer.go: prefix completion over the command set
//   - history.go: bounded history ring persisted to a file
//
// Each line runs under its own context. With WithInterruptTrap, Ctrl-C
// cancels the running command and returns to the prompt once the
// command notices. An open blocked inside connect(2) only notices
// between retries, so a second Ctrl-C quits instead.
package repl
