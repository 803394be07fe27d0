package service

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/netip"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
	"github.com/yndnr/tcpctl-go/internal/storage/memory"
	"github.com/yndnr/tcpctl-go/internal/telemetry/metric"
)

// fakeResolver serves fixed answers per name.
type fakeResolver struct {
	forward map[string][]netip.Addr
	reverse map[netip.Addr]string
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, name string, family domain.Family) ([]netip.Addr, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.forward[name], nil
}

func (r *fakeResolver) ReverseResolve(ctx context.Context, addr netip.Addr) (string, error) {
	name, ok := r.reverse[addr]
	if !ok {
		return "", errors.New("no PTR record")
	}
	return name, nil
}

// fakeSockets hands out increasing descriptors and replays scripted
// connect results per peer address.
type fakeSockets struct {
	next      int
	open      map[int]bool
	socketErr error
	connect   map[netip.Addr][]error // consumed in order; empty means success
	closeErr  map[int]error
	onConnect func()
	written   map[int][]byte
	incoming  map[int][]byte
	readErr   error
	attempts  []netip.AddrPort
	lowest    bool // hand out the lowest free descriptor, as the OS does
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{
		next:     3,
		open:     make(map[int]bool),
		connect:  make(map[netip.Addr][]error),
		closeErr: make(map[int]error),
		written:  make(map[int][]byte),
		incoming: make(map[int][]byte),
	}
}

func (s *fakeSockets) Socket(family domain.Family) (int, error) {
	if s.socketErr != nil {
		return -1, s.socketErr
	}
	fd := s.next
	if s.lowest {
		for fd = 3; s.open[fd]; fd++ {
		}
	} else {
		s.next++
	}
	s.open[fd] = true
	return fd, nil
}

func (s *fakeSockets) Connect(fd int, peer netip.AddrPort) error {
	s.attempts = append(s.attempts, peer)
	if s.onConnect != nil {
		s.onConnect()
	}
	script := s.connect[peer.Addr()]
	if len(script) == 0 {
		return nil
	}
	err := script[0]
	s.connect[peer.Addr()] = script[1:]
	return err
}

func (s *fakeSockets) Close(fd int) error {
	if err := s.closeErr[fd]; err != nil {
		return err
	}
	if !s.open[fd] {
		return syscall.EBADF
	}
	delete(s.open, fd)
	return nil
}

func (s *fakeSockets) Write(fd int, p []byte) (int, error) {
	if !s.open[fd] {
		return 0, syscall.EBADF
	}
	s.written[fd] = append(s.written[fd], p...)
	return len(p), nil
}

func (s *fakeSockets) Read(fd int, p []byte, timeout time.Duration) (int, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}
	n := copy(p, s.incoming[fd])
	s.incoming[fd] = s.incoming[fd][n:]
	return n, nil
}

var (
	addrA = netip.MustParseAddr("10.0.0.1")
	addrB = netip.MustParseAddr("10.0.0.2")
	addrC = netip.MustParseAddr("192.0.2.7")
)

func newTestManager(t *testing.T) (*ConnectionManager, *memory.Table, *fakeSockets, *fakeResolver) {
	t.Helper()

	table := memory.NewTable()
	sockets := newFakeSockets()
	resolver := &fakeResolver{
		forward: map[string][]netip.Addr{
			"example.test": {addrA, addrB},
			"single.test":  {addrC},
			"other.test":   {addrA},
		},
		reverse: map[netip.Addr]string{
			addrB: "b.example.test",
			addrC: "single.test",
		},
	}
	mgr := NewConnectionManager(table, resolver, sockets,
		WithMetrics(metric.NewRegistry()),
		WithRetryLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
	return mgr, table, sockets, resolver
}

func mustOpen(t *testing.T, mgr *ConnectionManager, host string, flags domain.SessionFlags) *domain.Session {
	t.Helper()
	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: host, Flags: flags})
	if err != nil {
		t.Fatalf("Open(%s): %v", host, err)
	}
	return sess
}

// ============================================================================
// Open
// ============================================================================

func TestConnectionManager_Open_FallsThroughCandidates(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sockets.connect[addrA] = []error{syscall.ECONNREFUSED}

	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: "example.test"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := netip.AddrPortFrom(addrB, 23)
	if sess.Peer != want {
		t.Errorf("Peer = %v, want %v", sess.Peer, want)
	}
	if sess.State != domain.StateConnected {
		t.Errorf("State = %v, want connected", sess.State)
	}
	if !sess.HasHandle() {
		t.Error("session should own a handle")
	}
	if table.Len() != 1 {
		t.Errorf("table size = %d, want 1", table.Len())
	}
	if len(sockets.attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(sockets.attempts))
	}
	if sess.Host != "example.test" {
		t.Errorf("Host = %q, want example.test", sess.Host)
	}
}

func TestConnectionManager_Open_CustomPort(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: "single.test", Port: 8080})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.Peer.Port() != 8080 {
		t.Errorf("Port = %d, want 8080", sess.Peer.Port())
	}
}

func TestConnectionManager_Open_DefaultPortOption(t *testing.T) {
	table := memory.NewTable()
	resolver := &fakeResolver{forward: map[string][]netip.Addr{"h": {addrC}}}
	mgr := NewConnectionManager(table, resolver, newFakeSockets(), WithDefaultPort(2323))

	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: "h"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.Peer.Port() != 2323 {
		t.Errorf("Port = %d, want 2323", sess.Peer.Port())
	}
}

func TestConnectionManager_Open_MissingHost(t *testing.T) {
	mgr, table, _, _ := newTestManager(t)

	for _, req := range []*OpenRequest{nil, {}} {
		_, err := mgr.Open(context.Background(), req)
		if !errors.Is(err, domain.ErrMissingArgument) {
			t.Errorf("Open(%v) error = %v, want ErrMissingArgument", req, err)
		}
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
}

func TestConnectionManager_Open_ResolutionFailure(t *testing.T) {
	tests := []struct {
		name string
		host string
		err  error
	}{
		{"lookup error", "example.test", errors.New("no such host")},
		{"no addresses", "missing.test", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, table, sockets, resolver := newTestManager(t)
			resolver.err = tt.err

			sess, err := mgr.Open(context.Background(), &OpenRequest{Host: tt.host})
			if !errors.Is(err, domain.ErrResolution) {
				t.Fatalf("error = %v, want ErrResolution", err)
			}
			if sess != nil {
				t.Error("session should be nil on resolution failure")
			}
			if table.Len() != 0 {
				t.Errorf("table size = %d, want 0", table.Len())
			}
			if len(sockets.open) != 0 {
				t.Errorf("open sockets = %d, want 0", len(sockets.open))
			}
			got := testutil.ToFloat64(mgr.Metrics().OpenFailures.WithLabelValues(metric.StageResolve))
			if got != 1 {
				t.Errorf("resolve failures = %v, want 1", got)
			}
		})
	}
}

func TestConnectionManager_Open_CancelledBeforeConnect(t *testing.T) {
	mgr, table, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Open(ctx, &OpenRequest{Host: "example.test"})
	if !errors.Is(err, domain.ErrResolution) {
		t.Fatalf("error = %v, want ErrResolution", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
}

func TestConnectionManager_Open_SocketFailureRemovesRecord(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sockets.socketErr = syscall.EMFILE

	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: "example.test"})
	if !errors.Is(err, domain.ErrSocketCreate) {
		t.Fatalf("error = %v, want ErrSocketCreate", err)
	}
	if !errors.Is(err, syscall.EMFILE) {
		t.Errorf("error should wrap EMFILE: %v", err)
	}
	if sess != nil {
		t.Error("session should be nil on socket failure")
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
}

func TestConnectionManager_Open_AllCandidatesFail(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sockets.connect[addrA] = []error{syscall.ECONNREFUSED}
	sockets.connect[addrB] = []error{syscall.ETIMEDOUT}

	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: "example.test"})
	if !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("error = %v, want ErrConnect", err)
	}
	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("error should carry the last attempt's errno: %v", err)
	}

	// The record survives with its socket so it can be closed later.
	if sess == nil {
		t.Fatal("session should be returned on connect failure")
	}
	if table.Len() != 1 {
		t.Fatalf("table size = %d, want 1", table.Len())
	}
	if sess.State != domain.StateSocketAllocated {
		t.Errorf("State = %v, want allocated", sess.State)
	}
	if sess.Peer != netip.AddrPortFrom(addrB, 23) {
		t.Errorf("Peer = %v, want last attempted address", sess.Peer)
	}

	if err := mgr.CloseByHandle(context.Background(), sess.Handle, false); err != nil {
		t.Fatalf("CloseByHandle: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
	if got := testutil.ToFloat64(mgr.Metrics().SessionsActive); got != 0 {
		t.Errorf("active gauge = %v, want 0", got)
	}
}

func TestConnectionManager_Open_RetriesInterruptedConnect(t *testing.T) {
	mgr, _, sockets, _ := newTestManager(t)
	sockets.connect[addrC] = []error{syscall.EINTR, syscall.EINTR}

	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: "single.test"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.Peer.Addr() != addrC {
		t.Errorf("Peer = %v, want %v", sess.Peer, addrC)
	}
	if len(sockets.attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(sockets.attempts))
	}
	if got := testutil.ToFloat64(mgr.Metrics().ConnectRetries); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
}

func TestConnectionManager_Open_CancelDuringRetry(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sockets.connect[addrA] = []error{syscall.EINTR, syscall.EINTR, syscall.EINTR}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sockets.onConnect = cancel

	sess, err := mgr.Open(ctx, &OpenRequest{Host: "example.test"})
	if !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("error = %v, want ErrConnect", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled: %v", err)
	}
	if !errors.Is(err, syscall.EINTR) {
		t.Errorf("error should wrap EINTR: %v", err)
	}
	// The second candidate is never tried.
	if len(sockets.attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(sockets.attempts))
	}
	if sess == nil || table.Len() != 1 {
		t.Fatal("interrupted session should stay registered")
	}
}

func TestConnectionManager_Open_Metrics(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	mustOpen(t, mgr, "single.test", 0)
	mustOpen(t, mgr, "example.test", 0)

	m := mgr.Metrics()
	if got := testutil.ToFloat64(m.SessionsOpened); got != 2 {
		t.Errorf("opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 2 {
		t.Errorf("active = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ConnectAttempts); got != 2 {
		t.Errorf("attempts = %v, want 2", got)
	}
}

// ============================================================================
// Close
// ============================================================================

func TestConnectionManager_Close(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sess := mustOpen(t, mgr, "single.test", 0)
	fd := sess.Handle

	if err := mgr.Close(context.Background(), sess); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sess.HasHandle() {
		t.Error("handle should be unset after close")
	}
	if sess.State != domain.StateClosed {
		t.Errorf("State = %v, want closed", sess.State)
	}
	if sockets.open[fd] {
		t.Error("socket should be closed")
	}
	// Close leaves removal to the caller.
	if table.Len() != 1 {
		t.Errorf("table size = %d, want 1", table.Len())
	}

	if err := mgr.Close(context.Background(), sess); !errors.Is(err, domain.ErrNotOpen) {
		t.Errorf("second Close error = %v, want ErrNotOpen", err)
	}
}

func TestConnectionManager_Close_Failure(t *testing.T) {
	mgr, _, sockets, _ := newTestManager(t)
	sess := mustOpen(t, mgr, "single.test", 0)
	sockets.closeErr[sess.Handle] = syscall.EIO

	err := mgr.Close(context.Background(), sess)
	if !errors.Is(err, domain.ErrClose) {
		t.Fatalf("error = %v, want ErrClose", err)
	}
	if !errors.Is(err, syscall.EIO) {
		t.Errorf("error should wrap EIO: %v", err)
	}
	if !sess.HasHandle() {
		t.Error("handle should be kept when close fails")
	}
}

func TestConnectionManager_CloseByHandle(t *testing.T) {
	mgr, table, _, _ := newTestManager(t)
	s1 := mustOpen(t, mgr, "single.test", 0)
	s2 := mustOpen(t, mgr, "example.test", 0)

	if err := mgr.CloseByHandle(context.Background(), s1.Handle, false); err != nil {
		t.Fatalf("CloseByHandle: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("table size = %d, want 1", table.Len())
	}
	if got := table.Sessions()[0]; got != s2 {
		t.Errorf("remaining session = %v, want %v", got.ID, s2.ID)
	}
	if got := testutil.ToFloat64(mgr.Metrics().SessionsClosed.WithLabelValues(metric.ReasonHandle)); got != 1 {
		t.Errorf("closed{handle} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mgr.Metrics().SessionsActive); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
}

func TestConnectionManager_CloseByHandle_NotFound(t *testing.T) {
	mgr, table, _, _ := newTestManager(t)
	mustOpen(t, mgr, "single.test", 0)

	tests := []struct {
		name   string
		handle int
	}{
		{"unknown handle", 999},
		{"unset handle", domain.HandleUnset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mgr.CloseByHandle(context.Background(), tt.handle, true)
			if !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("error = %v, want ErrSessionNotFound", err)
			}
			if table.Len() != 1 {
				t.Errorf("table size = %d, want 1", table.Len())
			}
		})
	}
}

func TestConnectionManager_CloseByHandle_Protected(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sess := mustOpen(t, mgr, "single.test", domain.FlagManaged)
	fd := sess.Handle

	err := mgr.CloseByHandle(context.Background(), fd, false)
	if !errors.Is(err, domain.ErrProtected) {
		t.Fatalf("error = %v, want ErrProtected", err)
	}
	if !sockets.open[fd] || table.Len() != 1 {
		t.Fatal("protected session should stay open and registered")
	}

	if err := mgr.CloseByHandle(context.Background(), fd, true); err != nil {
		t.Fatalf("forced CloseByHandle: %v", err)
	}
	if sockets.open[fd] {
		t.Error("socket should be closed after forced close")
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
}

func TestConnectionManager_CloseByHandle_CloseFailureStillRemoves(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sess := mustOpen(t, mgr, "single.test", 0)
	sockets.closeErr[sess.Handle] = syscall.EIO

	err := mgr.CloseByHandle(context.Background(), sess.Handle, false)
	if !errors.Is(err, domain.ErrClose) {
		t.Fatalf("error = %v, want ErrClose", err)
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
	if got := testutil.ToFloat64(mgr.Metrics().SessionsActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(mgr.Metrics().CloseFailures); got != 1 {
		t.Errorf("close failures = %v, want 1", got)
	}
}

// ============================================================================
// Teardown
// ============================================================================

func TestConnectionManager_TeardownAll(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	mustOpen(t, mgr, "single.test", 0)
	bad := mustOpen(t, mgr, "example.test", domain.FlagManaged)
	mustOpen(t, mgr, "other.test", 0)
	sockets.closeErr[bad.Handle] = syscall.EIO

	n := mgr.TeardownAll(context.Background())
	if n != 3 {
		t.Errorf("removed = %d, want 3", n)
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
	if got := testutil.ToFloat64(mgr.Metrics().SessionsActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(mgr.Metrics().SessionsClosed.WithLabelValues(metric.ReasonTeardown)); got != 3 {
		t.Errorf("closed{teardown} = %v, want 3", got)
	}

	if n := mgr.TeardownAll(context.Background()); n != 0 {
		t.Errorf("second teardown removed = %d, want 0", n)
	}
}

func TestConnectionManager_TeardownAll_MixedStates(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)

	closed := mustOpen(t, mgr, "single.test", 0)
	if err := mgr.Close(context.Background(), closed); err != nil {
		t.Fatalf("Close: %v", err)
	}
	live := mustOpen(t, mgr, "other.test", domain.FlagManaged)
	failing := mustOpen(t, mgr, "example.test", 0)
	sockets.closeErr[failing.Handle] = syscall.EIO
	sockets.connect[addrC] = []error{syscall.ETIMEDOUT}
	unconnected, err := mgr.Open(context.Background(), &OpenRequest{Host: "single.test"})
	if !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("Open error = %v, want ErrConnect", err)
	}
	liveFD, unconnectedFD := live.Handle, unconnected.Handle

	if n := mgr.TeardownAll(context.Background()); n != 4 {
		t.Errorf("removed = %d, want 4", n)
	}
	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
	if sockets.open[liveFD] || sockets.open[unconnectedFD] {
		t.Error("open descriptors should be closed")
	}
	if got := testutil.ToFloat64(mgr.Metrics().CloseFailures); got != 1 {
		t.Errorf("close failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mgr.Metrics().SessionsActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestConnectionManager_TeardownAll_DuringBlockedOpen(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	sockets.onConnect = func() {
		close(entered)
		<-release
	}

	opened := make(chan *domain.Session, 1)
	go func() {
		sess, _ := mgr.Open(context.Background(), &OpenRequest{Host: "single.test"})
		opened <- sess
	}()
	<-entered

	if n := mgr.TeardownAll(context.Background()); n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	close(release)
	sess := <-opened

	if table.Len() != 0 {
		t.Errorf("table size = %d, want 0", table.Len())
	}
	if fd := table.Load(sess).Handle; fd != domain.HandleUnset {
		t.Errorf("handle = %d, want unset after teardown", fd)
	}
}

func TestConnectionManager_TeardownAll_IncludesUnconnected(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sockets.connect[addrC] = []error{syscall.ECONNREFUSED}

	sess, err := mgr.Open(context.Background(), &OpenRequest{Host: "single.test"})
	if !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("error = %v, want ErrConnect", err)
	}
	fd := sess.Handle

	if n := mgr.TeardownAll(context.Background()); n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if sockets.open[fd] || table.Len() != 0 {
		t.Error("unconnected session should be closed and removed")
	}
}

func TestConnectionManager_MixedSequenceKeepsHandlesUnique(t *testing.T) {
	mgr, table, sockets, _ := newTestManager(t)
	sockets.lowest = true
	sockets.connect[addrC] = []error{syscall.ECONNREFUSED, syscall.ECONNREFUSED}
	rng := rand.New(rand.NewSource(1))
	ctx := context.Background()
	hosts := []string{"single.test", "other.test", "example.test"}

	opened, removed := 0, 0
	for step := 0; step < 300; step++ {
		sessions := table.Sessions()
		switch op := rng.Intn(4); {
		case op == 0 || len(sessions) == 0:
			if sess, _ := mgr.Open(ctx, &OpenRequest{Host: hosts[rng.Intn(len(hosts))]}); sess != nil {
				opened++
			}
		case op == 1:
			// Close without removal; the record stays, handle-less.
			_ = mgr.Close(ctx, sessions[rng.Intn(len(sessions))])
		case op == 2:
			sess := table.Load(sessions[rng.Intn(len(sessions))])
			if sess.HasHandle() && mgr.CloseByHandle(ctx, sess.Handle, true) == nil {
				removed++
			}
		default:
			if table.Remove(sessions[rng.Intn(len(sessions))]) == nil {
				removed++
			}
		}

		seen := make(map[int]bool)
		for _, rec := range table.Sessions() {
			sess := table.Load(rec)
			if !sess.HasHandle() {
				continue
			}
			if seen[sess.Handle] {
				t.Fatalf("step %d: handle %d owned by two records", step, sess.Handle)
			}
			seen[sess.Handle] = true
		}
		if table.Len() != opened-removed {
			t.Fatalf("step %d: size = %d, want %d opened - %d removed", step, table.Len(), opened, removed)
		}
	}
}

// ============================================================================
// List
// ============================================================================

func TestConnectionManager_ListAll(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	s1 := mustOpen(t, mgr, "single.test", domain.FlagManaged)
	s2 := mustOpen(t, mgr, "other.test", 0)

	entries := mgr.ListAll(context.Background())
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	tests := []struct {
		entry     ListEntry
		name      string
		address   string
		handle    int
		protected bool
	}{
		{entries[0], "single.test", "192.0.2.7", s1.Handle, true},
		{entries[1], UnknownPeer, "10.0.0.1", s2.Handle, false},
	}
	for i, tt := range tests {
		if tt.entry.Name != tt.name {
			t.Errorf("[%d] Name = %q, want %q", i, tt.entry.Name, tt.name)
		}
		if tt.entry.Address != tt.address {
			t.Errorf("[%d] Address = %q, want %q", i, tt.entry.Address, tt.address)
		}
		if tt.entry.Port != 23 {
			t.Errorf("[%d] Port = %d, want 23", i, tt.entry.Port)
		}
		if tt.entry.Handle != tt.handle {
			t.Errorf("[%d] Handle = %d, want %d", i, tt.entry.Handle, tt.handle)
		}
		if tt.entry.Protected != tt.protected {
			t.Errorf("[%d] Protected = %v, want %v", i, tt.entry.Protected, tt.protected)
		}
	}

	// Closing the first leaves only the second.
	if err := mgr.CloseByHandle(context.Background(), s1.Handle, true); err != nil {
		t.Fatalf("CloseByHandle: %v", err)
	}
	entries = mgr.ListAll(context.Background())
	if len(entries) != 1 {
		t.Fatalf("entries after close = %+v, want one", entries)
	}
	survivor := entries[0]
	if survivor.Handle != s2.Handle || survivor.Name != UnknownPeer ||
		survivor.Address != "10.0.0.1" || survivor.Port != 23 || survivor.Protected {
		t.Errorf("survivor = %+v, want unchanged entry for handle %d", survivor, s2.Handle)
	}
}

func TestConnectionManager_ListAll_Numeric(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	mustOpen(t, mgr, "single.test", 0)

	entries := mgr.ListAll(context.Background(), Numeric())
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Name != "192.0.2.7" {
		t.Errorf("Name = %q, want numeric address", entries[0].Name)
	}
}

func TestConnectionManager_ListAll_Empty(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	entries := mgr.ListAll(context.Background())
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %v, want empty non-nil slice", entries)
	}
}

func TestConnectionManager_ListAll_SkipsClosedRecords(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	s1 := mustOpen(t, mgr, "single.test", 0)
	mustOpen(t, mgr, "other.test", 0)

	// Close without removal leaves a handle-less record behind.
	if err := mgr.Close(context.Background(), s1); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(mgr.ListAll(context.Background())); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
	if mgr.Len() != 2 {
		t.Errorf("Len = %d, want 2", mgr.Len())
	}
}

// ============================================================================
// Payload I/O
// ============================================================================

func TestConnectionManager_Send(t *testing.T) {
	mgr, _, sockets, _ := newTestManager(t)
	sess := mustOpen(t, mgr, "single.test", 0)

	n, err := mgr.Send(context.Background(), sess.Handle, []byte("HELO example\r\n"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 14 {
		t.Errorf("n = %d, want 14", n)
	}
	if got := string(sockets.written[sess.Handle]); got != "HELO example\r\n" {
		t.Errorf("written = %q", got)
	}

	if _, err := mgr.Send(context.Background(), 999, []byte("x")); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Send to unknown handle error = %v, want ErrSessionNotFound", err)
	}
}

func TestConnectionManager_Receive(t *testing.T) {
	mgr, _, sockets, _ := newTestManager(t)
	sess := mustOpen(t, mgr, "single.test", 0)
	sockets.incoming[sess.Handle] = []byte("220 ready\r\n")

	data, err := mgr.Receive(context.Background(), sess.Handle, 0, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(data) != "220 ready\r\n" {
		t.Errorf("data = %q", data)
	}

	// Drained: the fake reports an orderly shutdown.
	_, err = mgr.Receive(context.Background(), sess.Handle, 0, time.Second)
	if !errors.Is(err, domain.ErrIO) || !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want ErrIO wrapping io.EOF", err)
	}
}

func TestConnectionManager_Receive_Timeout(t *testing.T) {
	mgr, _, sockets, _ := newTestManager(t)
	sess := mustOpen(t, mgr, "single.test", 0)
	sockets.readErr = os.ErrDeadlineExceeded

	_, err := mgr.Receive(context.Background(), sess.Handle, 16, 10*time.Millisecond)
	if !errors.Is(err, domain.ErrIO) {
		t.Fatalf("error = %v, want ErrIO", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("error should wrap os.ErrDeadlineExceeded: %v", err)
	}
}

func TestConnectionManager_Receive_UnknownHandle(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	_, err := mgr.Receive(context.Background(), 42, 0, 0)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}
