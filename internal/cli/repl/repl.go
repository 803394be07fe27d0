// Package repl provides the interactive REPL mode for tcpctl.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
	"github.com/yndnr/tcpctl-go/internal/telemetry/logger"
)

// DefaultPrompt is printed before every line.
const DefaultPrompt = "tcpctl> "

// Executor runs one parsed command line.
type Executor func(ctx context.Context, args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	completer *Completer
	history   *History
	exec      Executor
	logger    logger.Logger
	trapINT   bool
	forceQuit func()

	mu          sync.Mutex
	cancel      context.CancelFunc // cancels the running command, nil when idle
	interrupted bool               // the running command was already cancelled
}

// Option configures a REPL.
type Option func(*REPL)

// WithIO sets the input and output streams (stdin and stdout by default).
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input = in
		r.output = out
	}
}

// WithHistory sets the history store.
func WithHistory(h *History) Option {
	return func(r *REPL) {
		r.history = h
	}
}

// WithLogger sets the logger failed commands are reported to.
func WithLogger(l logger.Logger) Option {
	return func(r *REPL) {
		r.logger = l
	}
}

// WithInterruptTrap makes SIGINT cancel the running command instead of
// killing the process. An interrupt at the prompt is ignored.
//
// Cancellation is only observed between connect retries, so a command
// blocked in connect(2) does not return on the first interrupt. A
// second interrupt for the same command calls forceQuit.
func WithInterruptTrap(forceQuit func()) Option {
	return func(r *REPL) {
		r.trapINT = true
		r.forceQuit = forceQuit
	}
}

// New creates a new REPL instance that hands each line to exec.
func New(exec Executor, opts ...Option) *REPL {
	r := &REPL{
		input:     os.Stdin,
		output:    os.Stdout,
		prompt:    DefaultPrompt,
		completer: NewCompleter(),
		history:   NewHistory("", DefaultHistorySize),
		exec:      exec,
		logger:    logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// History returns the REPL history.
func (r *REPL) History() *History {
	return r.history
}

// Run reads and executes lines until exit, quit, end of input or ctx
// is done. Command errors are printed and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	if r.trapINT {
		stop := r.trapInterrupts()
		defer stop()
	}

	scanner := bufio.NewScanner(r.input)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.output, r.prompt)

		if !scanner.Scan() {
			fmt.Fprintln(r.output)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		args, err := SplitLine(line)
		if err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
			continue
		}
		r.history.Add(historyLine(line, args))

		switch args[0] {
		case "exit", "quit":
			return nil
		case "history":
			for i, entry := range r.history.Entries() {
				fmt.Fprintf(r.output, "%5d  %s\n", i+1, entry)
			}
			continue
		case "complete":
			for _, s := range r.completer.Complete(strings.Join(args[1:], " ")) {
				fmt.Fprintln(r.output, s)
			}
			continue
		}

		if err := r.execute(ctx, args); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
	}
}

// execute runs one command under a context the interrupt trap can cancel.
func (r *REPL) execute(ctx context.Context, args []string) error {
	lineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lineCtx = logger.WithCommandID(lineCtx, newCommandID())

	r.mu.Lock()
	r.cancel = cancel
	r.interrupted = false
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
	}()

	err := r.exec(lineCtx, args)
	if err != nil {
		r.logger.WithContext(lineCtx).Debug("command failed",
			"command", args[0], "code", domain.GetErrorCode(err), "error", err)
	}
	return err
}

// trapInterrupts routes SIGINT to the running command.
func (r *REPL) trapInterrupts() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, os.Interrupt)

	go func() {
		for {
			select {
			case <-sigCh:
				r.interrupt()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// interrupt cancels the running command. A repeated interrupt for a
// command that has not returned yet calls forceQuit.
func (r *REPL) interrupt() {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return
	}
	if !r.interrupted {
		r.interrupted = true
		r.cancel()
		r.mu.Unlock()
		return
	}
	force := r.forceQuit
	r.mu.Unlock()

	if force != nil {
		force()
	}
}

// historyLine masks credentials in send payloads before a line is
// remembered.
func historyLine(line string, args []string) string {
	if len(args) < 3 || args[0] != "send" {
		return line
	}
	payload := strings.Join(args[2:], " ")
	masked := logger.RedactPayload(payload)
	if masked == payload {
		return line
	}
	return strings.Join(args[:2], " ") + " " + masked
}
