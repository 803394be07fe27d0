package repl

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// newCommandID returns a correlation ID for one REPL line.
func newCommandID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return "cmd-" + strings.ToLower(id.String())
}
