package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrResolutionFailed is returned when a multicast-local hostname cannot be
// resolved. Non-local hostnames never fail here; they pass through untouched.
var ErrResolutionFailed = errors.New("hostname resolution failed")

// Resolver maps a hostname to a connectable address.
type Resolver interface {
	Resolve(ctx context.Context, hostname string) (string, error)
}

type cacheEntry struct {
	addr      string
	expiresAt time.Time
}

// CachedResolver resolves .local hostnames through the system resolver (which
// handles mDNS on hosts running Bonjour or Avahi) and caches results for a
// fixed TTL. Any other hostname is returned as-is for regular DNS to handle
// at dial time.
type CachedResolver struct {
	ttl    time.Duration
	lookup func(ctx context.Context, host string) ([]string, error)
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewCachedResolver(ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		ttl:    ttl,
		lookup: net.DefaultResolver.LookupHost,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, hostname string) (string, error) {
	if !strings.HasSuffix(hostname, ".local") {
		return hostname, nil
	}

	now := r.now()
	r.mu.Lock()
	if entry, ok := r.cache[hostname]; ok && now.Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.addr, nil
	}
	r.mu.Unlock()

	addrs, err := r.lookup(ctx, hostname)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrResolutionFailed, hostname, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: %s: no addresses", ErrResolutionFailed, hostname)
	}

	addr := addrs[0]
	r.mu.Lock()
	r.cache[hostname] = cacheEntry{addr: addr, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()
	return addr, nil
}
