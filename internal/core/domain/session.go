// Package domain defines the core domain models for tcpctl.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling.
package domain

import (
	"crypto/rand"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// HandleUnset marks a session that has no OS socket descriptor,
	// either because none was created yet or because it was closed.
	HandleUnset = -1

	// DefaultPort is the destination port used when none is given (telnet).
	DefaultPort uint16 = 23

	// SessionIDPrefix is the prefix for session correlation IDs.
	SessionIDPrefix = "tcps-"
)

// Family is the address family a session connects over.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// String returns the family name as used in configuration.
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Network returns the Go network name for resolver lookups ("ip4" or "ip6").
func (f Family) Network() string {
	if f == FamilyIPv6 {
		return "ip6"
	}
	return "ip4"
}

// Matches reports whether addr belongs to the family.
func (f Family) Matches(addr netip.Addr) bool {
	if f == FamilyIPv6 {
		return addr.Is6() && !addr.Is4In6()
	}
	return addr.Is4() || addr.Is4In6()
}

// ParseFamily parses "ipv4"/"4"/"inet" or "ipv6"/"6"/"inet6".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ipv4", "4", "inet", "ip4":
		return FamilyIPv4, nil
	case "ipv6", "6", "inet6", "ip6":
		return FamilyIPv6, nil
	default:
		return FamilyIPv4, ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown address family %q", s))
	}
}

// SessionFlags is a bitset of per-session usage tags.
type SessionFlags uint32

const (
	// FlagManaged marks a connection owned by a higher-level protocol
	// (for example an FTP client). It can only be closed by handle when
	// the close is forced.
	FlagManaged SessionFlags = 1 << iota
)

// Has reports whether all bits of f2 are set.
func (f SessionFlags) Has(f2 SessionFlags) bool {
	return f&f2 == f2
}

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	StateCreated SessionState = iota
	StateSocketAllocated
	StateConnected
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSocketAllocated:
		return "allocated"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one tracked TCP client socket and its peer metadata.
type Session struct {
	// ID is a correlation identifier for logs.
	// Format: tcps-{ulid_lowercase}.
	ID string `json:"id"`

	// Handle is the OS socket descriptor, HandleUnset when there is none.
	Handle int `json:"handle"`

	// Host is the destination name the caller asked for.
	Host string `json:"host"`

	// Peer is the address and port of the last connect attempt.
	// Valid once the session has reached StateConnected.
	Peer netip.AddrPort `json:"peer"`

	Family Family       `json:"family"`
	Flags  SessionFlags `json:"flags"`
	State  SessionState `json:"state"`

	// CreatedAt and ConnectedAt are Unix milliseconds.
	CreatedAt   int64 `json:"created_at"`
	ConnectedAt int64 `json:"connected_at,omitempty"`
}

// NewSession creates a session record with an unset handle.
func NewSession(flags SessionFlags) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		Handle:    HandleUnset,
		Flags:     flags,
		State:     StateCreated,
		CreatedAt: time.Now().UnixMilli(),
	}, nil
}

// GenerateSessionID generates a new session ID using ULID.
func GenerateSessionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// HasHandle reports whether the session currently owns a descriptor.
func (s *Session) HasHandle() bool {
	return s.Handle != HandleUnset
}

// IsProtected reports whether a non-forced close must be refused.
func (s *Session) IsProtected() bool {
	return s.Flags.Has(FlagManaged)
}

// AttachHandle records a freshly created descriptor.
func (s *Session) AttachHandle(fd int) {
	s.Handle = fd
	s.State = StateSocketAllocated
}

// MarkConnected records a successful connect to peer.
func (s *Session) MarkConnected(peer netip.AddrPort) {
	s.Peer = peer
	s.State = StateConnected
	s.ConnectedAt = time.Now().UnixMilli()
}

// MarkClosed drops the descriptor. The record itself stays valid.
func (s *Session) MarkClosed() {
	s.Handle = HandleUnset
	s.State = StateClosed
}
