// Package ratelimit implements an in-process fixed-window limiter keyed by
// client and endpoint.
//
// A Limiter is constructed explicitly, injected into the HTTP layer, and owns
// its sweeper goroutine: Start launches it, Close stops it and waits.
package ratelimit

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/metrics"
	"github.com/retrostock/retrostock/internal/observability"
)

// Endpoint names used by the HTTP layer and configuration.
const (
	EndpointContact         = "contact"
	EndpointSearch          = "search"
	EndpointAdminLogin      = "admin-login"
	EndpointAdminImport     = "admin-import"
	EndpointAdminImageFetch = "admin-image-fetch"
)

// DefaultSweepInterval is how often expired windows are dropped.
const DefaultSweepInterval = 5 * time.Minute

// DefaultMessage is returned when a rule has no message of its own.
const DefaultMessage = "Too many requests, please try again later."

// UnknownClient is the identity used when no client header is present.
const UnknownClient = "unknown"

// Rule is the quota for one endpoint.
type Rule struct {
	Window      time.Duration `json:"window"`
	MaxRequests int           `json:"max_requests"`
	Message     string        `json:"message"`
}

func (r Rule) valid() bool {
	return r.Window > 0 && r.MaxRequests > 0
}

// DefaultRules returns a fresh copy of the built-in endpoint table.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		EndpointContact: {
			Window:      15 * time.Minute,
			MaxRequests: 5,
			Message:     "Too many contact form submissions. Please try again in 15 minutes.",
		},
		EndpointSearch: {
			Window:      time.Minute,
			MaxRequests: 60,
			Message:     "Too many search requests. Please slow down.",
		},
		EndpointAdminLogin: {
			Window:      15 * time.Minute,
			MaxRequests: 10,
			Message:     "Too many failed admin login attempts. Please try again later.",
		},
		EndpointAdminImport: {
			Window:      time.Hour,
			MaxRequests: 20,
			Message:     "Import limit reached. Please try again later.",
		},
		EndpointAdminImageFetch: {
			Window:      time.Minute,
			MaxRequests: 30,
			Message:     "Too many image fetch requests. Please slow down.",
		},
	}
}

// Decision is the outcome of a Check. Remaining is -1 for endpoints without
// a rule.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Message    string        `json:"message,omitempty"`
	Remaining  int           `json:"remaining"`
	ResetTime  time.Time     `json:"reset_time,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// KeyState is a snapshot of one live window.
type KeyState struct {
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	ResetTime time.Time `json:"reset_time"`
}

type window struct {
	clientID  string
	count     int
	resetTime time.Time
}

// Limiter tracks request counts per client and endpoint.
type Limiter struct {
	mu      sync.Mutex
	base    map[string]Rule
	rules   map[string]Rule
	windows map[string]*window

	clock         func() time.Time
	sweepInterval time.Duration

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(interval time.Duration) Option {
	return func(l *Limiter) {
		if interval > 0 {
			l.sweepInterval = interval
		}
	}
}

// New builds a limiter for rules. Rules without a positive window and quota
// are ignored, leaving that endpoint unlimited.
func New(rules map[string]Rule, opts ...Option) *Limiter {
	l := &Limiter{
		rules:         make(map[string]Rule, len(rules)),
		windows:       make(map[string]*window),
		clock:         func() time.Time { return time.Now().UTC() },
		sweepInterval: DefaultSweepInterval,
	}
	for endpoint, rule := range rules {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" || !rule.valid() {
			continue
		}
		l.rules[endpoint] = rule
	}
	l.base = make(map[string]Rule, len(l.rules))
	for endpoint, rule := range l.rules {
		l.base[endpoint] = rule
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts a request from clientID against endpoint. A rejected request
// leaves the window untouched.
func (l *Limiter) Check(clientID, endpoint string) Decision {
	if l == nil {
		return Decision{Allowed: true, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.rules[endpoint]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}
	}

	now := l.clock()
	key := windowKey(clientID, endpoint)
	w, exists := l.windows[key]
	if !exists || now.After(w.resetTime) {
		w = &window{clientID: clientID, count: 1, resetTime: now.Add(rule.Window)}
		l.windows[key] = w
		return Decision{Allowed: true, Remaining: rule.MaxRequests - 1, ResetTime: w.resetTime}
	}

	if w.count >= rule.MaxRequests {
		message := rule.Message
		if message == "" {
			message = DefaultMessage
		}
		retry := w.resetTime.Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{
			Allowed:    false,
			Message:    message,
			Remaining:  0,
			ResetTime:  w.resetTime,
			RetryAfter: retry,
		}
	}

	w.count++
	return Decision{Allowed: true, Remaining: rule.MaxRequests - w.count, ResetTime: w.resetTime}
}

// Peek reports whether the next request from clientID would be allowed
// without counting it.
func (l *Limiter) Peek(clientID, endpoint string) Decision {
	if l == nil {
		return Decision{Allowed: true, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.rules[endpoint]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}
	}

	now := l.clock()
	w, exists := l.windows[windowKey(clientID, endpoint)]
	if !exists || now.After(w.resetTime) {
		return Decision{Allowed: true, Remaining: rule.MaxRequests}
	}
	if w.count < rule.MaxRequests {
		return Decision{Allowed: true, Remaining: rule.MaxRequests - w.count, ResetTime: w.resetTime}
	}

	message := rule.Message
	if message == "" {
		message = DefaultMessage
	}
	return Decision{
		Allowed:    false,
		Message:    message,
		ResetTime:  w.resetTime,
		RetryAfter: max(w.resetTime.Sub(now), 0),
	}
}

// Sweep removes every window whose reset time has passed and returns how
// many were removed. Expiry is evaluated on the live entry under the lock.
func (l *Limiter) Sweep() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetTime) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Reset drops every window belonging to clientID and returns the count.
func (l *Limiter) Reset(clientID string) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if w.clientID == clientID {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Keys returns the live windows sorted by key.
func (l *Limiter) Keys() []KeyState {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	out := make([]KeyState, 0, len(l.windows))
	for key, w := range l.windows {
		out = append(out, KeyState{Key: key, Count: w.count, ResetTime: w.resetTime})
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Rules returns a copy of the active rule table.
func (l *Limiter) Rules() map[string]Rule {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Rule, len(l.rules))
	for endpoint, rule := range l.rules {
		out[endpoint] = rule
	}
	return out
}

// ApplyOverrides merges per-endpoint overrides. Zero fields keep the
// existing rule's value; an unknown endpoint is added only when the merged
// rule has a positive window and quota.
func (l *Limiter) ApplyOverrides(overrides map[string]Rule) {
	if l == nil || len(overrides) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.mergeLocked(overrides)
}

// Reconfigure restores the rules given to New and then applies overrides,
// so an override removed from configuration stops taking effect. Open
// windows are kept.
func (l *Limiter) Reconfigure(overrides map[string]Rule) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rules = make(map[string]Rule, len(l.base))
	for endpoint, rule := range l.base {
		l.rules[endpoint] = rule
	}
	l.mergeLocked(overrides)
}

func (l *Limiter) mergeLocked(overrides map[string]Rule) {
	for endpoint, override := range overrides {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}
		merged := l.rules[endpoint]
		if override.Window > 0 {
			merged.Window = override.Window
		}
		if override.MaxRequests > 0 {
			merged.MaxRequests = override.MaxRequests
		}
		if override.Message != "" {
			merged.Message = override.Message
		}
		if !merged.valid() {
			continue
		}
		l.rules[endpoint] = merged
	}
}

// OverridesFromConfig converts the rate_limits config section.
func OverridesFromConfig(cfg map[string]config.RateLimitOverride) map[string]Rule {
	out := make(map[string]Rule, len(cfg))
	for endpoint, override := range cfg {
		out[endpoint] = Rule{Window: override.Window, MaxRequests: override.MaxRequests, Message: override.Message}
	}
	return out
}

// Start launches the periodic sweeper. Calling it again, or after Close,
// does nothing.
func (l *Limiter) Start() {
	if l == nil {
		return
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.closed || l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

// Close stops the sweeper and waits for it to exit. It is safe to call more
// than once.
func (l *Limiter) Close() error {
	if l == nil {
		return nil
	}

	l.lifecycle.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.closed = true
	l.lifecycle.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (l *Limiter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.Sweep()
			remaining := l.size()
			metrics.RecordRateLimitSweep(removed, remaining)
			if removed > 0 {
				observability.Debug("Rate limit sweep",
					zap.Int("removed", removed),
					zap.Int("remaining", remaining))
			}
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// ClientID derives the caller identity: the first hop of X-Forwarded-For,
// then X-Real-IP, else UnknownClient. Clients behind one proxy share a bucket.
func ClientID(r *http.Request) string {
	if r == nil {
		return UnknownClient
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownClient
}

func windowKey(clientID, endpoint string) string {
	return clientID + ":" + endpoint
}
