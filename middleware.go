package main

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// clientResolver finds the address a request came from. X-Forwarded-For is
// only read when the peer is one of the trusted proxies, and then the
// right-most hop that is not itself a trusted proxy wins.
type clientResolver struct {
	trusted []*net.IPNet
}

func newClientResolver(trustedCIDRs []string) clientResolver {
	return clientResolver{trusted: parseCIDRs(trustedCIDRs)}
}

func (c clientResolver) isTrusted(addr string) bool {
	return containsIP(c.trusted, net.ParseIP(addr))
}

func (c clientResolver) ip(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !c.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !c.isTrusted(hop) {
			break
		}
	}
	return client
}

func containsIP(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ipAllowlist restricts access to the given CIDRs. An empty list allows
// everything; a list where nothing parses allows nothing.
func ipAllowlist(allowedCIDRs []string, clients clientResolver, next http.Handler) http.Handler {
	if len(allowedCIDRs) == 0 {
		return next
	}

	logger := log.With().Str("component", "allowlist").Logger()
	cidrs := parseCIDRs(allowedCIDRs)
	if len(cidrs) == 0 {
		logger.Error().Strs("cidrs", allowedCIDRs).Msg("no valid CIDR in webhook allowlist, denying all requests")
	} else {
		logger.Info().Strs("cidrs", allowedCIDRs).Msg("webhook IP allowlist enabled")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := clients.ip(r)
		if containsIP(cidrs, net.ParseIP(addr)) {
			next.ServeHTTP(w, r)
			return
		}
		logger.Warn().Str("ip", addr).Msg("access denied")
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

func parseCIDRs(raw []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		// Bare IPs get a host mask.
		if !strings.Contains(s, "/") {
			if strings.Contains(s, ":") {
				s += "/128"
			} else {
				s += "/32"
			}
		}
		_, cidr, err := net.ParseCIDR(s)
		if err != nil {
			log.Warn().Err(err).Str("cidr", s).Msg("ignoring invalid CIDR")
			continue
		}
		nets = append(nets, cidr)
	}
	return nets
}

// rateLimit caps each client IP at perMinute requests with a burst of a
// tenth of that. Zero disables the limit.
func rateLimit(perMinute int, clients clientResolver, next http.Handler) http.Handler {
	if perMinute <= 0 {
		return next
	}

	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	every := rate.Limit(float64(perMinute) / 60)

	var mu sync.Mutex
	limiters := expirable.NewLRU[string, *rate.Limiter](1000, nil, 5*time.Minute)
	limiterFor := func(addr string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		lim, ok := limiters.Get(addr)
		if !ok {
			lim = rate.NewLimiter(every, burst)
			limiters.Add(addr, lim)
		}
		return lim
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := clients.ip(r)
		if !limiterFor(addr).Allow() {
			log.Warn().Str("component", "ratelimit").Str("ip", addr).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID tags every request with an id, echoed in the response and
// attached to the request's logger.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := log.With().Str("request_id", id).Logger()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).Msg("request served")
	})
}
