package netsock

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
)

// DefaultResolveTimeout bounds a single lookup.
const DefaultResolveTimeout = 5 * time.Second

// Resolver resolves destination names for one address family.
type Resolver struct {
	r       *net.Resolver
	timeout time.Duration
}

// NewResolver creates a resolver backed by the Go resolver.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Resolver{r: net.DefaultResolver, timeout: timeout}
}

// Resolve returns candidate addresses for name in resolver order.
// Address literals are returned without a lookup. The returned slice
// is owned by the caller.
func (r *Resolver) Resolve(ctx context.Context, name string, family domain.Family) ([]netip.Addr, error) {
	if name == "" {
		return nil, fmt.Errorf("empty host name")
	}

	if addr, err := netip.ParseAddr(name); err == nil {
		if !family.Matches(addr) {
			return nil, fmt.Errorf("address %s is not %s", addr, family)
		}
		return []netip.Addr{normalize(addr, family)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	found, err := r.r.LookupNetIP(ctx, family.Network(), name)
	if err != nil {
		return nil, err
	}

	addrs := make([]netip.Addr, 0, len(found))
	for _, a := range found {
		if family.Matches(a) {
			addrs = append(addrs, normalize(a, family))
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no %s addresses for %s", family, name)
	}
	return addrs, nil
}

// ReverseResolve returns the first PTR name for addr, without the trailing dot.
func (r *Resolver) ReverseResolve(ctx context.Context, addr netip.Addr) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.r.LookupAddr(ctx, addr.String())
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no names for %s", addr)
	}
	return strings.TrimSuffix(names[0], "."), nil
}

func normalize(addr netip.Addr, family domain.Family) netip.Addr {
	if family == domain.FamilyIPv4 {
		return addr.Unmap()
	}
	return addr.WithZone("")
}
