package repl

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned by SplitLine for an unbalanced quote.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// SplitLine splits a REPL line into arguments. Blanks separate
// arguments; single quotes keep everything literally; double quotes
// and backslashes allow blanks and quotes inside an argument, so
// `send 3 "USER anonymous"` yields three arguments.
func SplitLine(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inArg = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
