package websocket

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateLimiterIdleTTL   = 10 * time.Minute
	rateLimiterSweepEach = 5 * time.Minute
)

// LimitReason describes why a socket was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits caps sockets per instance and per client IP, and the rate
// at which one IP may open new ones. Zero values disable a limit.
type ConnectionLimits struct {
	maxTotal int
	maxPerIP int
	rate     rate.Limit
	burst    int
	clock    clockwork.Clock

	mu        sync.Mutex
	total     int
	perIP     map[string]int
	limiters  map[string]*ipLimiter
	nextSweep time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(maxTotal, maxPerIP int, connectsPerSecond float64, burst int, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		maxTotal:  maxTotal,
		maxPerIP:  maxPerIP,
		rate:      rate.Limit(connectsPerSecond),
		burst:     burst,
		clock:     clock,
		perIP:     make(map[string]int),
		limiters:  make(map[string]*ipLimiter),
		nextSweep: clock.Now().Add(rateLimiterSweepEach),
	}
}

// Acquire reserves a socket slot for ip. On refusal nothing is reserved.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(rateLimiterSweepEach)
	}

	if l.rate > 0 {
		entry, ok := l.limiters[ip]
		if !ok {
			entry = &ipLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
			l.limiters[ip] = entry
		}
		entry.lastSeen = now
		if !entry.limiter.AllowN(now, 1) {
			return false, LimitReasonRate
		}
	}

	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return false, LimitReasonGlobal
	}
	if l.maxPerIP > 0 && l.perIP[ip] >= l.maxPerIP {
		return false, LimitReasonPerIP
	}

	l.total++
	l.perIP[ip]++
	return true, ""
}

// Release frees a slot taken by Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total > 0 {
		l.total--
	}
	if n := l.perIP[ip]; n > 1 {
		l.perIP[ip] = n - 1
	} else {
		delete(l.perIP, ip)
	}
}

// Current returns the number of reserved slots.
func (l *ConnectionLimits) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// sweep drops rate limiters of IPs not seen for a while. Must be called with mu held.
func (l *ConnectionLimits) sweep(now time.Time) {
	cutoff := now.Add(-rateLimiterIdleTTL)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// clientIP prefers proxy headers over the socket peer address.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
