package command

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/tcpctl-go/internal/cli/connection"
	"github.com/yndnr/tcpctl-go/internal/core/domain"
)

// fakeResolver resolves address literals only.
type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, name string, _ domain.Family) ([]netip.Addr, error) {
	addr, err := netip.ParseAddr(name)
	if err != nil {
		return nil, errors.New("no such host")
	}
	return []netip.Addr{addr}, nil
}

func (fakeResolver) ReverseResolve(_ context.Context, addr netip.Addr) (string, error) {
	if addr == netip.MustParseAddr("192.0.2.1") {
		return "gw.example.test", nil
	}
	return "", errors.New("no PTR record")
}

// fakeSockets hands out descriptors from 100 and refuses connects to
// the addresses in refuse.
type fakeSockets struct {
	next    int
	refuse  map[netip.Addr]bool
	open    map[int]bool
	written map[int][]byte
	inbox   map[int][]byte
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{
		next:    100,
		refuse:  make(map[netip.Addr]bool),
		open:    make(map[int]bool),
		written: make(map[int][]byte),
		inbox:   make(map[int][]byte),
	}
}

func (s *fakeSockets) Socket(domain.Family) (int, error) {
	fd := s.next
	s.next++
	s.open[fd] = true
	return fd, nil
}

func (s *fakeSockets) Connect(_ int, peer netip.AddrPort) error {
	if s.refuse[peer.Addr()] {
		return syscall.ECONNREFUSED
	}
	return nil
}

func (s *fakeSockets) Close(fd int) error {
	delete(s.open, fd)
	return nil
}

func (s *fakeSockets) Write(fd int, p []byte) (int, error) {
	s.written[fd] = append(s.written[fd], p...)
	return len(p), nil
}

func (s *fakeSockets) Read(fd int, p []byte, _ time.Duration) (int, error) {
	data, ok := s.inbox[fd]
	if !ok {
		return 0, syscall.EAGAIN
	}
	n := copy(p, data)
	s.inbox[fd] = data[n:]
	return n, nil
}

// testEnv is an Env with captured output and a private config file.
type testEnv struct {
	*Env
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	dir     string
	cfgPath string
	sockets *fakeSockets
}

// newTestEnv writes extraConfig (YAML) below a history setting into a
// temporary cli.yaml and wires fake network adapters.
func newTestEnv(t *testing.T, stdin, extraConfig string) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cli.yaml")
	content := "history:\n  file: " + filepath.Join(dir, "history") + "\n" + extraConfig
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	sockets := newFakeSockets()
	env := NewEnv(
		WithIO(strings.NewReader(stdin), out, errOut),
		WithManagerOptions(
			connection.WithResolver(fakeResolver{}),
			connection.WithSockets(sockets),
		),
	)
	t.Cleanup(func() { _ = env.Close() })

	return &testEnv{
		Env:     env,
		out:     out,
		errOut:  errOut,
		dir:     dir,
		cfgPath: cfgPath,
		sockets: sockets,
	}
}

// run executes one command line and returns its error. Output of
// earlier runs is discarded.
func (e *testEnv) run(args ...string) error {
	e.out.Reset()
	argv := append([]string{"tcpctl", "--config", e.cfgPath}, args...)
	return App(e.Env).RunContext(context.Background(), argv)
}

// mustRun is run that fails the test on error.
func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	if err := e.run(args...); err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return e.out.String()
}
