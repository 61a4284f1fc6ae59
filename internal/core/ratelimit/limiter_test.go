package ratelimit

import (
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/retrostock/retrostock/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheckTwoPerMinute(t *testing.T) {
	clock := newFakeClock()
	limiter := New(map[string]Rule{
		"contact": {Window: time.Minute, MaxRequests: 2, Message: "slow down"},
	}, WithClock(clock.Now))

	var results []bool
	for i := 0; i < 3; i++ {
		results = append(results, limiter.Check("1.2.3.4", "contact").Allowed)
		clock.Advance(100 * time.Millisecond)
	}
	require.Equal(t, []bool{true, true, false}, results)
}

func TestCheckExactQuotaThenReset(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	limiter := New(map[string]Rule{
		"search": {Window: time.Minute, MaxRequests: 3},
	}, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		d := limiter.Check("client", "search")
		require.True(t, d.Allowed, "call %d", i+1)
		require.Equal(t, 2-i, d.Remaining)
		require.Equal(t, start.Add(time.Minute), d.ResetTime)
	}

	rejected := limiter.Check("client", "search")
	require.False(t, rejected.Allowed)
	require.Equal(t, DefaultMessage, rejected.Message)
	require.Equal(t, time.Minute, rejected.RetryAfter)

	// At the reset instant the window is still active.
	clock.Advance(time.Minute)
	require.False(t, limiter.Check("client", "search").Allowed)

	clock.Advance(time.Millisecond)
	fresh := limiter.Check("client", "search")
	require.True(t, fresh.Allowed)
	require.Equal(t, 2, fresh.Remaining)
	require.Equal(t, clock.Now().Add(time.Minute), fresh.ResetTime)

	keys := limiter.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, 1, keys[0].Count)
}

func TestRejectionDoesNotIncrement(t *testing.T) {
	clock := newFakeClock()
	limiter := New(map[string]Rule{
		"contact": {Window: time.Minute, MaxRequests: 1, Message: "nope"},
	}, WithClock(clock.Now))

	require.True(t, limiter.Check("a", "contact").Allowed)
	for i := 0; i < 5; i++ {
		d := limiter.Check("a", "contact")
		require.False(t, d.Allowed)
		require.Equal(t, "nope", d.Message)
	}

	keys := limiter.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, "a:contact", keys[0].Key)
	require.Equal(t, 1, keys[0].Count)
}

func TestUnconfiguredEndpointAlwaysAllowed(t *testing.T) {
	limiter := New(map[string]Rule{
		"broken": {Window: 0, MaxRequests: 5},
	})

	for i := 0; i < 100; i++ {
		d := limiter.Check("a", "anything")
		require.True(t, d.Allowed)
		require.Equal(t, -1, d.Remaining)
	}
	require.True(t, limiter.Check("a", "broken").Allowed)
	require.Empty(t, limiter.Keys())
	require.NotContains(t, limiter.Rules(), "broken")

	var nilLimiter *Limiter
	require.True(t, nilLimiter.Check("a", "contact").Allowed)
}

func TestKeysAreIsolated(t *testing.T) {
	limiter := New(map[string]Rule{
		"contact": {Window: time.Minute, MaxRequests: 1},
		"search":  {Window: time.Minute, MaxRequests: 1},
	})

	require.True(t, limiter.Check("a", "contact").Allowed)
	require.True(t, limiter.Check("b", "contact").Allowed)
	require.True(t, limiter.Check("a", "search").Allowed)
	require.False(t, limiter.Check("a", "contact").Allowed)
	require.Len(t, limiter.Keys(), 3)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	limiter := New(map[string]Rule{
		"short": {Window: time.Second, MaxRequests: 5},
		"long":  {Window: time.Hour, MaxRequests: 5},
	}, WithClock(clock.Now))

	limiter.Check("a", "short")
	limiter.Check("a", "long")
	require.Equal(t, []string{"a:long", "a:short"}, keyNames(limiter.Keys()))

	clock.Advance(2 * time.Second)
	require.Equal(t, 1, limiter.Sweep())
	require.Equal(t, []string{"a:long"}, keyNames(limiter.Keys()))

	require.Equal(t, 0, limiter.Sweep())
}

func TestConcurrentChecksNeverExceedQuota(t *testing.T) {
	limiter := New(map[string]Rule{
		"contact": {Window: time.Hour, MaxRequests: 10},
	})

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check("same-client", "contact").Allowed {
				allowed.Add(1)
			}
			limiter.Sweep()
		}()
	}
	wg.Wait()

	require.Equal(t, int64(10), allowed.Load())
}

func TestApplyOverrides(t *testing.T) {
	limiter := New(DefaultRules())

	limiter.ApplyOverrides(map[string]Rule{
		EndpointContact: {MaxRequests: 2},
		"reviews":       {Window: time.Minute, MaxRequests: 3, Message: "later"},
		"incomplete":    {MaxRequests: 3},
		"  ":            {Window: time.Minute, MaxRequests: 1},
	})

	rules := limiter.Rules()
	require.Equal(t, 2, rules[EndpointContact].MaxRequests)
	require.Equal(t, 15*time.Minute, rules[EndpointContact].Window)
	require.NotEmpty(t, rules[EndpointContact].Message)
	require.Equal(t, Rule{Window: time.Minute, MaxRequests: 3, Message: "later"}, rules["reviews"])
	require.NotContains(t, rules, "incomplete")
	require.Len(t, rules, 6)
}

func TestReset(t *testing.T) {
	limiter := New(DefaultRules())
	limiter.Check("1.1.1.1", EndpointContact)
	limiter.Check("1.1.1.1", EndpointSearch)
	limiter.Check("2.2.2.2", EndpointSearch)

	require.Equal(t, 2, limiter.Reset("1.1.1.1"))
	require.Equal(t, []string{"2.2.2.2:search"}, keyNames(limiter.Keys()))
}

func TestResetMatchesIPv6ClientExactly(t *testing.T) {
	limiter := New(DefaultRules())
	limiter.Check("2001:db8::1", EndpointContact)
	limiter.Check("2001:db8::1:5", EndpointContact)
	limiter.Check("2001:db8::1:5", EndpointAdminLogin)

	require.Equal(t, 1, limiter.Reset("2001:db8::1"))
	require.Equal(t, []string{
		"2001:db8::1:5:admin-login",
		"2001:db8::1:5:contact",
	}, keyNames(limiter.Keys()))
	require.Zero(t, limiter.Reset("2001:db8:"))
}

func TestPeekDoesNotCount(t *testing.T) {
	clock := newFakeClock()
	limiter := New(map[string]Rule{
		"admin-login": {Window: time.Minute, MaxRequests: 2},
	}, WithClock(clock.Now))

	require.True(t, limiter.Peek("a", "admin-login").Allowed)
	require.Empty(t, limiter.Keys())

	limiter.Check("a", "admin-login")
	limiter.Check("a", "admin-login")
	d := limiter.Peek("a", "admin-login")
	require.False(t, d.Allowed)
	require.Equal(t, DefaultMessage, d.Message)
	require.Equal(t, time.Minute, d.RetryAfter)

	clock.Advance(2 * time.Minute)
	require.True(t, limiter.Peek("a", "admin-login").Allowed)
	require.Equal(t, -1, limiter.Peek("a", "search").Remaining)
}

func TestStartCloseStopsSweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	limiter := New(map[string]Rule{
		"contact": {Window: time.Millisecond, MaxRequests: 1},
	}, WithClock(clock.Now), WithSweepInterval(5*time.Millisecond))

	limiter.Check("a", "contact")
	clock.Advance(time.Second)

	limiter.Start()
	limiter.Start()
	require.Eventually(t, func() bool {
		return len(limiter.Keys()) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, limiter.Close())
	require.NoError(t, limiter.Close())

	// Start after Close must not relaunch the sweeper.
	limiter.Start()
}

func TestClientID(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, "203.0.113.7"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.2"}, "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"empty forwarded falls through", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"unknown", nil, UnknownClient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, ClientID(req))
		})
	}
	require.Equal(t, UnknownClient, ClientID(nil))
}

func keyNames(keys []KeyState) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Key)
	}
	return out
}

func TestReconfigureDropsRemovedOverrides(t *testing.T) {
	limiter := New(DefaultRules())
	limiter.ApplyOverrides(map[string]Rule{
		EndpointSearch: {MaxRequests: 1},
		"reviews":      {Window: time.Minute, MaxRequests: 3},
	})
	limiter.Check("1.1.1.1", EndpointSearch)

	limiter.Reconfigure(OverridesFromConfig(map[string]config.RateLimitOverride{
		EndpointContact: {Window: time.Hour},
	}))

	rules := limiter.Rules()
	require.Equal(t, DefaultRules()[EndpointSearch], rules[EndpointSearch])
	require.NotContains(t, rules, "reviews")
	require.Equal(t, time.Hour, rules[EndpointContact].Window)
	require.Equal(t, DefaultRules()[EndpointContact].MaxRequests, rules[EndpointContact].MaxRequests)
	require.Len(t, limiter.Keys(), 1)
}
