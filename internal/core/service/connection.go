// Package service provides domain services for tcpctl.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
	"github.com/yndnr/tcpctl-go/internal/telemetry/logger"
	"github.com/yndnr/tcpctl-go/internal/telemetry/metric"
)

// UnknownPeer is listed in place of a peer name that has no reverse mapping.
const UnknownPeer = "UNKNOWN"

// DefaultRetryInterval paces connect retries after EINTR.
const DefaultRetryInterval = 10 * time.Millisecond

// SessionTable is the registry the manager keeps its sessions in.
type SessionTable interface {
	// Create appends a record with an unset handle.
	Create(flags domain.SessionFlags) (*domain.Session, error)

	// FindByHandle returns the record owning descriptor h.
	FindByHandle(h int) (*domain.Session, error)

	// Remove unlinks a record.
	Remove(s *domain.Session) error

	// Sessions returns a snapshot of all records in insertion order.
	Sessions() []*domain.Session

	// Len returns the number of records.
	Len() int
}

// Resolver turns names into candidate addresses and back.
type Resolver interface {
	Resolve(ctx context.Context, name string, family domain.Family) ([]netip.Addr, error)
	ReverseResolve(ctx context.Context, addr netip.Addr) (string, error)
}

// Sockets is the OS socket capability.
type Sockets interface {
	Socket(family domain.Family) (int, error)
	Connect(fd int, peer netip.AddrPort) error
	Close(fd int) error
	Write(fd int, p []byte) (int, error)
	Read(fd int, p []byte, timeout time.Duration) (int, error)
}

// ConnectionManager opens, lists and closes TCP client sessions.
//
// It is driven from a single control flow; the table it owns carries
// its own lock.
type ConnectionManager struct {
	table       SessionTable
	resolver    Resolver
	sockets     Sockets
	logger      logger.Logger
	metrics     *metric.Registry
	retry       *rate.Limiter
	defaultPort uint16
}

// ManagerOption configures a ConnectionManager.
type ManagerOption func(*ConnectionManager)

// WithLogger sets the manager's logger.
func WithLogger(l logger.Logger) ManagerOption {
	return func(m *ConnectionManager) {
		m.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) ManagerOption {
	return func(m *ConnectionManager) {
		m.metrics = r
	}
}

// WithRetryLimiter sets the limiter that paces EINTR retries.
// Its Wait is also where a cancelled context stops the retry loop.
func WithRetryLimiter(l *rate.Limiter) ManagerOption {
	return func(m *ConnectionManager) {
		m.retry = l
	}
}

// WithDefaultPort sets the port used when an OpenRequest has none.
func WithDefaultPort(port uint16) ManagerOption {
	return func(m *ConnectionManager) {
		if port != 0 {
			m.defaultPort = port
		}
	}
}

// NewConnectionManager creates a manager over the given table and capabilities.
func NewConnectionManager(table SessionTable, resolver Resolver, sockets Sockets, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		table:       table,
		resolver:    resolver,
		sockets:     sockets,
		logger:      logger.Default(),
		retry:       rate.NewLimiter(rate.Every(DefaultRetryInterval), 1),
		defaultPort: domain.DefaultPort,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = metric.NewRegistry()
	}
	return m
}

// Metrics returns the registry the manager records into.
func (m *ConnectionManager) Metrics() *metric.Registry {
	return m.metrics
}

// Len returns the number of tracked sessions.
func (m *ConnectionManager) Len() int {
	return m.table.Len()
}

// log returns the manager logger bound to ctx, so records carry the
// command ID of the REPL line being run.
func (m *ConnectionManager) log(ctx context.Context) logger.Logger {
	return m.logger.WithContext(ctx)
}

// ============================================================================
// Open
// ============================================================================

// OpenRequest contains parameters for opening a connection.
type OpenRequest struct {
	Host   string              // Required: name or address literal
	Port   uint16              // Optional, defaults to the manager's default port
	Family domain.Family       // Address family to resolve and connect over
	Flags  domain.SessionFlags // Usage tags, e.g. domain.FlagManaged
}

// Open resolves req.Host, creates a socket and connects it to the first
// candidate address that accepts.
//
// On ErrConnect the returned session is still registered and still owns
// its unconnected socket, so the caller can list it or close it. On
// every other error the returned session is nil and the table is
// unchanged.
func (m *ConnectionManager) Open(ctx context.Context, req *OpenRequest) (*domain.Session, error) {
	if req == nil || req.Host == "" {
		return nil, domain.ErrMissingArgument.WithDetails("host is required")
	}

	port := req.Port
	if port == 0 {
		port = m.defaultPort
	}
	log := m.log(ctx).With("host", req.Host, "port", port, "family", req.Family.String())
	start := time.Now()

	// 1. Resolve candidates
	addrs, err := m.resolver.Resolve(ctx, req.Host, req.Family)
	if err == nil && len(addrs) == 0 {
		err = errors.New("no addresses")
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.metrics.OpenFailures.WithLabelValues(metric.StageResolve).Inc()
		log.Debug("resolution failed", "error", err)
		return nil, domain.ErrResolution.WithDetails(req.Host).WithCause(err)
	}
	addrs = slices.Clone(addrs)

	// 2. Allocate the record before any socket exists
	sess, err := m.table.Create(req.Flags)
	if err != nil {
		return nil, err
	}
	m.table.Update(sess, func(s *domain.Session) {
		s.Host = req.Host
		s.Family = req.Family
	})

	// 3. Create the socket; the record goes away with it on failure
	fd, err := m.sockets.Socket(req.Family)
	if err != nil {
		_ = m.table.Remove(sess)
		m.metrics.OpenFailures.WithLabelValues(metric.StageSocket).Inc()
		log.Warn("socket creation failed", "error", err)
		return nil, domain.ErrSocketCreate.WithCause(err)
	}
	m.table.Update(sess, func(s *domain.Session) { s.AttachHandle(fd) })
	log = log.With("handle", fd, "session_id", sess.ID)

	// 4. Try each candidate in order
	if err := m.connect(ctx, sess, fd, addrs, port, log); err != nil {
		m.metrics.OpenFailures.WithLabelValues(metric.StageConnect).Inc()
		log.Warn("connection failed", "candidates", len(addrs), "error", err)
		return sess, domain.ErrConnect.
			WithDetails(fmt.Sprintf("%s port %d", req.Host, port)).
			WithCause(err)
	}

	m.metrics.SessionsOpened.Inc()
	m.metrics.SessionsActive.Inc()
	m.metrics.ConnectDuration.Observe(time.Since(start).Seconds())
	log.Info("connection opened", "peer", m.table.Load(sess).Peer.String())
	return sess, nil
}

// connect walks the candidates, retrying a candidate for as long as
// connect(2) is interrupted and ctx is live. It returns the error of the
// last attempt when no candidate accepts.
func (m *ConnectionManager) connect(ctx context.Context, sess *domain.Session, fd int, addrs []netip.Addr, port uint16, log logger.Logger) error {
	var lastErr error
	for _, addr := range addrs {
		peer := netip.AddrPortFrom(addr, port)
		m.table.Update(sess, func(s *domain.Session) { s.Peer = peer })

		for {
			m.metrics.ConnectAttempts.Inc()
			err := m.sockets.Connect(fd, peer)
			if err == nil {
				m.table.Update(sess, func(s *domain.Session) { s.MarkConnected(peer) })
				return nil
			}
			lastErr = err

			if !errors.Is(err, syscall.EINTR) {
				log.Debug("candidate failed", "peer", peer.String(), "error", err)
				break
			}
			if werr := m.retry.Wait(ctx); werr != nil {
				return errors.Join(err, werr)
			}
			m.metrics.ConnectRetries.Inc()
			log.Debug("connect interrupted, retrying", "peer", peer.String())
		}
	}
	return lastErr
}

// ============================================================================
// Close
// ============================================================================

// Close closes the session's socket. The record stays in the table in
// the closed state; removing it is a separate step.
func (m *ConnectionManager) Close(ctx context.Context, sess *domain.Session) error {
	cur := m.table.Load(sess)
	if !cur.HasHandle() {
		return domain.ErrNotOpen
	}

	if err := m.sockets.Close(cur.Handle); err != nil {
		m.metrics.CloseFailures.Inc()
		m.log(ctx).Warn("connection close failed", "handle", cur.Handle, "session_id", cur.ID, "error", err)
		return domain.ErrClose.WithDetails(fmt.Sprintf("handle %d", cur.Handle)).WithCause(err)
	}

	m.log(ctx).Debug("connection closed", "handle", cur.Handle, "session_id", cur.ID)
	m.table.Update(sess, (*domain.Session).MarkClosed)
	if cur.State == domain.StateConnected {
		m.metrics.SessionsActive.Dec()
	}
	return nil
}

// CloseByHandle closes and removes the session owning handle h.
// A managed session is refused with ErrProtected unless force is set.
// If the OS close fails the record is removed anyway and the ErrClose
// is returned.
func (m *ConnectionManager) CloseByHandle(ctx context.Context, h int, force bool) error {
	sess, err := m.table.FindByHandle(h)
	if err != nil {
		return domain.ErrSessionNotFound.WithDetails(fmt.Sprintf("handle %d", h))
	}

	if sess.IsProtected() && !force {
		return domain.ErrProtected.WithDetails(fmt.Sprintf("handle %d", h))
	}

	closeErr := m.Close(ctx, sess)
	m.forget(sess, metric.ReasonHandle)
	return closeErr
}

// TeardownAll force-closes and removes every session, whatever its
// flags. Close failures are logged and do not stop the sweep. It
// returns the number of records removed.
func (m *ConnectionManager) TeardownAll(ctx context.Context) int {
	log := m.log(ctx)
	removed := 0

	for _, sess := range m.table.Sessions() {
		if cur := m.table.Load(sess); cur.HasHandle() {
			if err := m.Close(ctx, sess); err != nil {
				log.Warn("teardown: dropping session after close failure",
					"handle", cur.Handle,
					"session_id", cur.ID,
					"error", err,
				)
			}
		}
		if m.forget(sess, metric.ReasonTeardown) {
			removed++
		}
	}

	if removed > 0 {
		log.Info("all connections torn down", "count", removed)
	}
	return removed
}

// forget removes a record and settles the gauges for a socket that was
// still connected when its close failed.
func (m *ConnectionManager) forget(sess *domain.Session, reason string) bool {
	state := m.table.Load(sess).State
	if err := m.table.Remove(sess); err != nil {
		return false
	}
	if state == domain.StateConnected {
		m.metrics.SessionsActive.Dec()
	}
	m.metrics.SessionsClosed.WithLabelValues(reason).Inc()
	return true
}

// ============================================================================
// List
// ============================================================================

// ListEntry describes one open session for display.
type ListEntry struct {
	Name      string `json:"name" yaml:"name"`
	Address   string `json:"address" yaml:"address"`
	Port      uint16 `json:"port" yaml:"port"`
	Handle    int    `json:"handle" yaml:"handle"`
	Protected bool   `json:"protected" yaml:"protected"`
	State     string `json:"state" yaml:"state"`
	SessionID string `json:"session_id" yaml:"session_id"`
}

// ListOption tunes ListAll.
type ListOption func(*listOptions)

type listOptions struct {
	numeric bool
}

// Numeric skips reverse lookups and lists peer addresses as names.
func Numeric() ListOption {
	return func(o *listOptions) {
		o.numeric = true
	}
}

// ListAll describes every session that owns a handle, in table order.
// A failed reverse lookup shows as UnknownPeer.
func (m *ConnectionManager) ListAll(ctx context.Context, opts ...ListOption) []ListEntry {
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}

	entries := make([]ListEntry, 0, m.table.Len())
	for _, rec := range m.table.Sessions() {
		sess := m.table.Load(rec)
		if !sess.HasHandle() {
			continue
		}

		entry := ListEntry{
			Name:      UnknownPeer,
			Port:      sess.Peer.Port(),
			Handle:    sess.Handle,
			Protected: sess.IsProtected(),
			State:     sess.State.String(),
			SessionID: sess.ID,
		}
		if sess.Peer.IsValid() {
			addr := sess.Peer.Addr()
			entry.Address = addr.String()
			if o.numeric {
				entry.Name = entry.Address
			} else if name, err := m.resolver.ReverseResolve(ctx, addr); err == nil && name != "" {
				entry.Name = name
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// ============================================================================
// Payload I/O
// ============================================================================

// Send writes data to the session owning handle h.
func (m *ConnectionManager) Send(ctx context.Context, h int, data []byte) (int, error) {
	if _, err := m.table.FindByHandle(h); err != nil {
		return 0, domain.ErrSessionNotFound.WithDetails(fmt.Sprintf("handle %d", h))
	}

	n, err := m.sockets.Write(h, data)
	if err != nil {
		return n, domain.ErrIO.WithDetails(fmt.Sprintf("write handle %d", h)).WithCause(err)
	}
	m.log(ctx).Debug("sent", "handle", h, "bytes", n, "line", string(data))
	return n, nil
}

// Receive reads up to max bytes from the session owning handle h,
// waiting at most timeout for data (zero waits indefinitely). A peer
// that has closed the connection yields ErrIO wrapping io.EOF.
func (m *ConnectionManager) Receive(ctx context.Context, h int, max int, timeout time.Duration) ([]byte, error) {
	if _, err := m.table.FindByHandle(h); err != nil {
		return nil, domain.ErrSessionNotFound.WithDetails(fmt.Sprintf("handle %d", h))
	}
	if max <= 0 {
		max = 4096
	}

	buf := make([]byte, max)
	n, err := m.sockets.Read(h, buf, timeout)
	if err != nil {
		return nil, domain.ErrIO.WithDetails(fmt.Sprintf("read handle %d", h)).WithCause(err)
	}
	if n == 0 {
		return nil, domain.ErrIO.WithDetails("connection closed by peer").WithCause(io.EOF)
	}
	m.log(ctx).Debug("received", "handle", h, "bytes", n)
	return buf[:n], nil
}
