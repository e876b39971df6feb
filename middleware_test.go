package main

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okServer struct{}

func (okServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func okHandler() http.Handler { return &okServer{} }

func send(h http.Handler, remote, xff string) int {
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", nil)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestIPAllowlist(t *testing.T) {
	direct := ipAllowlist([]string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr"}, newClientResolver(nil), okHandler())
	proxied := ipAllowlist([]string{"140.82.112.0/20"}, newClientResolver([]string{"10.0.0.0/8"}), okHandler())

	tests := []struct {
		name   string
		h      http.Handler
		remote string
		xff    string
		want   int
	}{
		{"inside range", direct, "10.1.2.3:5555", "", http.StatusOK},
		{"bare ip", direct, "192.168.1.5:80", "", http.StatusOK},
		{"outside", direct, "172.16.0.1:80", "", http.StatusForbidden},
		{"forwarded header ignored without trusted proxy", direct, "172.16.0.1:80", "10.0.0.9", http.StatusForbidden},
		{"garbage address", direct, "nonsense", "", http.StatusForbidden},
		{"trusted proxy forwards allowed client", proxied, "10.0.0.2:80", "140.82.112.7", http.StatusOK},
		{"right-most untrusted hop wins", proxied, "10.0.0.2:80", "140.82.112.7, 203.0.113.9", http.StatusForbidden},
		{"trusted hops are skipped", proxied, "10.0.0.2:80", "140.82.112.7, 10.0.0.3", http.StatusOK},
		{"untrusted peer cannot forward", proxied, "203.0.113.9:80", "140.82.112.1", http.StatusForbidden},
		{"trusted proxy without header", proxied, "10.0.0.2:80", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, send(tt.h, tt.remote, tt.xff))
		})
	}
}

func TestIPAllowlistDisabled(t *testing.T) {
	next := okHandler()
	assert.Same(t, next, ipAllowlist(nil, newClientResolver(nil), next))
}

func TestIPAllowlistWithNoValidCIDRDeniesAll(t *testing.T) {
	h := ipAllowlist([]string{"10.0.0.0/8,192.168.1.1"}, newClientResolver(nil), okHandler())
	assert.Equal(t, http.StatusForbidden, send(h, "10.1.1.1:80", ""))
	assert.Equal(t, http.StatusForbidden, send(h, "203.0.113.9:80", ""))
}

func TestParseCIDRs(t *testing.T) {
	nets := parseCIDRs([]string{" 10.0.0.0/8 ", "", "::1", "bad/99"})
	require.Len(t, nets, 2)
	assert.Equal(t, "10.0.0.0/8", nets[0].String())
	assert.Equal(t, "::1/128", nets[1].String())
}

func TestRateLimit(t *testing.T) {
	// 60/min gives a burst of 6 and refills one token per second.
	h := rateLimit(60, newClientResolver(nil), okHandler())

	for i := 0; i < 6; i++ {
		require.Equal(t, http.StatusOK, send(h, "1.2.3.4:1000", ""), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(h, "1.2.3.4:1000", ""))
	assert.Equal(t, http.StatusOK, send(h, "5.6.7.8:1000", ""), "other clients keep their own budget")
}

func TestRateLimitIgnoresRotatingForwardedHeader(t *testing.T) {
	h := rateLimit(1, newClientResolver(nil), okHandler())

	require.Equal(t, http.StatusOK, send(h, "203.0.113.9:1000", "1.1.1.1"))
	for _, xff := range []string{"2.2.2.2", "3.3.3.3", "4.4.4.4"} {
		assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.9:1000", xff))
	}
}

func TestRateLimitSharesLimiterAcrossConcurrentRequests(t *testing.T) {
	h := rateLimit(10, newClientResolver(nil), okHandler())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if send(h, "1.2.3.4:1000", "") == http.StatusOK {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, allowed)
}

func TestRateLimitDisabled(t *testing.T) {
	next := okHandler()
	assert.Same(t, next, rateLimit(0, newClientResolver(nil), next))
}

func TestRequestID(t *testing.T) {
	var sawLogger bool
	h := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	generated := rec.Header().Get(requestIDHeader)
	assert.Len(t, generated, 36)
	assert.True(t, sawLogger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}
