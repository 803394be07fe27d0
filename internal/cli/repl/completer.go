package repl

import (
	"slices"
	"strings"
)

// Commands lists every line the REPL understands, for completion and help.
var Commands = []string{
	"open", "close", "close --all", "list",
	"send", "recv",
	"stats",
	"config", "config show", "config path", "config init",
	"version", "history", "help", "exit", "quit",
}

// Completer provides command completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over Commands.
func NewCompleter() *Completer {
	return &Completer{commands: slices.Clone(Commands)}
}

// Complete returns completion suggestions for the given prefix.
// Leading blanks are ignored and runs of blanks count as one.
func (c *Completer) Complete(prefix string) []string {
	prefix = strings.TrimLeft(prefix, " \t")
	if fields := strings.Fields(prefix); len(fields) > 0 {
		norm := strings.Join(fields, " ")
		if strings.HasSuffix(prefix, " ") {
			norm += " "
		}
		prefix = norm
	}

	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
