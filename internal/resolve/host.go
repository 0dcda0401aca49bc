// Package resolve provides the best-effort name lookups used while building
// the address inventory. Every lookup is total: failures report ok=false.
package resolve

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/pcaplens/internal/metrics"
)

const (
	defaultLookupTimeout = 2 * time.Second
	defaultCacheTTL      = 10 * time.Minute
	defaultCacheCleanup  = 5 * time.Minute
)

// HostResolver maps an IP address to a hostname.
type HostResolver interface {
	LookupHost(ctx context.Context, addr string) (string, bool)
}

// AddrLookuper is the reverse-lookup half of *net.Resolver.
type AddrLookuper interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// DNSOptions configures a DNSResolver.
type DNSOptions struct {
	Lookuper AddrLookuper  // Default net.DefaultResolver
	Timeout  time.Duration // Per lookup; default 2s
	CacheTTL time.Duration // Positive and negative answers; default 10m
}

// DNSResolver performs PTR lookups with a per-lookup timeout and caches the
// answers. It is safe for concurrent use, so one instance can serve many runs.
type DNSResolver struct {
	lookuper AddrLookuper
	timeout  time.Duration
	cache    *cache.Cache
}

// NewDNSResolver creates a caching reverse resolver.
func NewDNSResolver(opts DNSOptions) *DNSResolver {
	if opts.Lookuper == nil {
		opts.Lookuper = net.DefaultResolver
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultLookupTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &DNSResolver{
		lookuper: opts.Lookuper,
		timeout:  opts.Timeout,
		cache:    cache.New(opts.CacheTTL, defaultCacheCleanup),
	}
}

// LookupHost returns the first PTR name for addr without its trailing dot.
func (r *DNSResolver) LookupHost(ctx context.Context, addr string) (string, bool) {
	if v, found := r.cache.Get(addr); found {
		metrics.ResolverLookupsTotal.WithLabelValues("dns", "cached").Inc()
		name := v.(string)
		return name, name != ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.lookuper.LookupAddr(lookupCtx, addr)
	if err != nil || len(names) == 0 {
		metrics.ResolverLookupsTotal.WithLabelValues("dns", "failed").Inc()
		// Caller cancellation says nothing about the address.
		if ctx.Err() == nil {
			r.cache.SetDefault(addr, "")
		}
		return "", false
	}

	name := strings.TrimSuffix(names[0], ".")
	metrics.ResolverLookupsTotal.WithLabelValues("dns", "resolved").Inc()
	r.cache.SetDefault(addr, name)
	return name, name != ""
}

// cachedCount returns the number of cached answers, including negative ones.
func (r *DNSResolver) cachedCount() int {
	return r.cache.ItemCount()
}

// NopHost never resolves anything.
type NopHost struct{}

// LookupHost implements HostResolver.
func (NopHost) LookupHost(context.Context, string) (string, bool) {
	return "", false
}
