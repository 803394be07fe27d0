package connection

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/yndnr/tcpctl-go/internal/cli/config"
	"github.com/yndnr/tcpctl-go/internal/core/service"
	"github.com/yndnr/tcpctl-go/internal/infra/netsock"
	"github.com/yndnr/tcpctl-go/internal/storage/memory"
	"github.com/yndnr/tcpctl-go/internal/telemetry/logger"
	"github.com/yndnr/tcpctl-go/internal/telemetry/metric"
)

// Manager owns the session registry of one tcpctl process.
// It embeds the core ConnectionManager, so every connection operation
// is available directly on it.
type Manager struct {
	*service.ConnectionManager

	config *config.CLIConfig
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	resolver service.Resolver
	sockets  service.Sockets
	logger   logger.Logger
}

// WithResolver replaces the DNS resolver.
func WithResolver(r service.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithSockets replaces the OS socket adapter.
func WithSockets(s service.Sockets) Option {
	return func(o *options) {
		o.sockets = s
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewManager creates an empty registry configured from cfg.
func NewManager(cfg *config.CLIConfig, opts ...Option) *Manager {
	o := options{
		logger: logger.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = netsock.NewResolver(cfg.Resolve.Timeout)
	}
	if o.sockets == nil {
		o.sockets = netsock.NewSockets()
	}

	table := memory.NewTable()
	metrics := metric.NewRegistry()
	metrics.MustRegister(metric.NewCollector(table))

	burst := cfg.Connect.RetryBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Every(cfg.Connect.RetryInterval), burst)

	return &Manager{
		ConnectionManager: service.NewConnectionManager(table, o.resolver, o.sockets,
			service.WithLogger(o.logger),
			service.WithMetrics(metrics),
			service.WithRetryLimiter(limiter),
			service.WithDefaultPort(cfg.DefaultPort),
		),
		config: cfg,
	}
}

// Config returns the configuration the manager was built from.
func (m *Manager) Config() *config.CLIConfig {
	return m.config
}

// Teardown closes every tracked connection. It has the shape of a
// shutdown hook and never fails.
func (m *Manager) Teardown(ctx context.Context) error {
	m.TeardownAll(ctx)
	return nil
}
