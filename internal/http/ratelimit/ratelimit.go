// Package ratelimit throttles inbound API requests per client address.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	httperrors "gitea.jw6.us/james/segtrack/internal/http/errors"
	"gitea.jw6.us/james/segtrack/internal/logging"
)

const defaultMaxClients = 10000

// Config describes one limiter. Rate is requests per second.
type Config struct {
	Rate  rate.Limit
	Burst int
	// IdleTTL is how long an idle client keeps its bucket.
	IdleTTL time.Duration
	// TrustedProxies are CIDRs or single addresses whose forwarding
	// headers are believed. Empty trusts every peer.
	TrustedProxies []string
	MaxClients     int
}

// Limiter holds one token bucket per client address.
type Limiter struct {
	cfg     Config
	trusted []netip.Prefix
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// New builds a limiter. Unparseable proxy entries are logged and skipped.
func New(cfg Config) *Limiter {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*client),
	}
	for _, raw := range cfg.TrustedProxies {
		p, err := parsePrefix(raw)
		if err != nil {
			logging.Warn().Str("proxy", raw).Err(err).Msg("ignoring trusted proxy entry")
			continue
		}
		l.trusted = append(l.trusted, p)
	}
	return l
}

func parsePrefix(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Run evicts idle clients until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Allow spends one token for key and reports whether the request may proceed.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.cfg.MaxClients {
			l.evictOldestLocked()
		}
		c = &client{bucket: rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.bucket.AllowN(now, 1)
}

func (l *Limiter) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, c := range l.clients {
		if oldestKey == "" || c.lastSeen.Before(oldest) {
			oldestKey, oldest = key, c.lastSeen
		}
	}
	delete(l.clients, oldestKey)
}

// Len reports how many clients are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects over-budget clients with a JSON 429.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	retryAfter := "1"
	if l.cfg.Rate > 0 && l.cfg.Rate != rate.Inf {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / float64(l.cfg.Rate))))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := l.ClientIP(r)
			if !l.Allow(ip) {
				logging.Ctx(r.Context()).Warn().Str("client", ip).Str("path", r.URL.Path).Msg("inbound rate limit exceeded")
				w.Header().Set("Retry-After", retryAfter)
				httperrors.Write(w, http.StatusTooManyRequests, httperrors.Body{
					Error:  "rate_limited",
					Detail: "too many requests, slow down",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP resolves the caller address. Forwarding headers count only when
// the direct peer is a trusted proxy; the leftmost X-Forwarded-For entry wins.
func (l *Limiter) ClientIP(r *http.Request) string {
	peer := peerAddr(r.RemoteAddr)
	if !l.trustsPeer(peer) {
		return peer.String()
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.Unmap().String()
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return peer.String()
}

func (l *Limiter) trustsPeer(peer netip.Addr) bool {
	if len(l.trusted) == 0 {
		return true
	}
	if !peer.IsValid() {
		return false
	}
	for _, p := range l.trusted {
		if p.Contains(peer) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) netip.Addr {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
