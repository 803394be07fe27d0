//go:build linux || darwin || freebsd || netbsd || openbsd

package netsock

import (
	"errors"
	"net/netip"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
)

// Sockets creates and drives blocking TCP client descriptors.
type Sockets struct{}

// NewSockets returns the platform socket adapter.
func NewSockets() *Sockets {
	return &Sockets{}
}

// Socket creates an unconnected stream socket for the family.
// Urgent data is delivered inline, as telnet-style peers expect.
func (s *Sockets) Socket(family domain.Family) (int, error) {
	af := unix.AF_INET
	if family == domain.FamilyIPv6 {
		af = unix.AF_INET6
	}

	fd, err := unix.Socket(af, unix.SOCK_STREAM, 0)
	if err != nil {
		return domain.HandleUnset, err
	}
	unix.CloseOnExec(fd)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_OOBINLINE, 1)
	return fd, nil
}

// Connect issues one blocking connect(2). EINTR is returned as is.
func (s *Sockets) Connect(fd int, peer netip.AddrPort) error {
	return unix.Connect(fd, sockaddr(peer))
}

// Close closes the descriptor. It is not retried on EINTR: the
// descriptor is released by the kernel either way.
func (s *Sockets) Close(fd int) error {
	return unix.Close(fd)
}

// Write writes all of p, resuming after short writes and EINTR.
func (s *Sockets) Write(fd int, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

// Read reads once into p. A positive timeout bounds the wait for data;
// expiry returns os.ErrDeadlineExceeded. A zero read means the peer
// closed the connection.
func (s *Sockets) Read(fd int, p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := waitReadable(fd, timeout); err != nil {
			return 0, err
		}
	}
	for {
		n, err := unix.Read(fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func waitReadable(fd int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return os.ErrDeadlineExceeded
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(remaining.Milliseconds())+1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return os.ErrDeadlineExceeded
		}
		return nil
	}
}

func sockaddr(peer netip.AddrPort) unix.Sockaddr {
	addr := peer.Addr()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(peer.Port()), Addr: addr.As4()}
	}
	// Flow info and scope stay zero.
	return &unix.SockaddrInet6{Port: int(peer.Port()), Addr: addr.As16()}
}
