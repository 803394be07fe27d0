//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package netsock

import (
	"errors"
	"net/netip"
	"time"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
)

// Sockets reports every operation as unsupported on this platform.
type Sockets struct{}

// NewSockets returns the platform socket adapter.
func NewSockets() *Sockets {
	return &Sockets{}
}

func (s *Sockets) Socket(domain.Family) (int, error) {
	return domain.HandleUnset, errors.ErrUnsupported
}

func (s *Sockets) Connect(int, netip.AddrPort) error {
	return errors.ErrUnsupported
}

func (s *Sockets) Close(int) error {
	return errors.ErrUnsupported
}

func (s *Sockets) Write(int, []byte) (int, error) {
	return 0, errors.ErrUnsupported
}

func (s *Sockets) Read(int, []byte, time.Duration) (int, error) {
	return 0, errors.ErrUnsupported
}
