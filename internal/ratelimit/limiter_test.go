package ratelimit_test

import (
	"testing"
	"time"

	"grainbridge/internal/ratelimit"
)

func TestIntervalTruncatesToMilliseconds(t *testing.T) {
	cases := []struct {
		rate int
		want time.Duration
	}{
		{rate: 60, want: 16 * time.Millisecond},
		{rate: 1000, want: time.Millisecond},
		{rate: 1, want: time.Second},
		{rate: 0, want: 0},
	}
	for _, tc := range cases {
		if got := ratelimit.Interval(tc.rate); got != tc.want {
			t.Fatalf("Interval(%d): expected %v, got %v", tc.rate, tc.want, got)
		}
	}
}

func TestLimiterEnforcesMinimumSpacing(t *testing.T) {
	limiter := ratelimit.New(10) // 100ms interval
	base := time.Now()

	if !limiter.AllowAt("/ch/01", base) {
		t.Fatal("first send must pass")
	}
	if limiter.AllowAt("/ch/01", base.Add(50*time.Millisecond)) {
		t.Fatal("send inside the interval must drop")
	}
	if !limiter.AllowAt("/ch/01", base.Add(110*time.Millisecond)) {
		t.Fatal("send after the interval must pass")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := ratelimit.New(10)
	base := time.Now()

	if !limiter.AllowAt("/ch/01", base) {
		t.Fatal("first send on /ch/01 must pass")
	}
	if !limiter.AllowAt("/ch/02", base) {
		t.Fatal("first send on /ch/02 must pass despite /ch/01 activity")
	}
	if limiter.AllowAt("/ch/01", base.Add(time.Millisecond)) {
		t.Fatal("burst on /ch/01 must drop")
	}
	if !limiter.AllowAt("/ch/03", base.Add(time.Millisecond)) {
		t.Fatal("fresh key must not be affected by other keys' drops")
	}
}

func TestLimiterCountsDrops(t *testing.T) {
	limiter := ratelimit.New(10)
	base := time.Now()

	limiter.AllowAt("/gs/freeze", base)
	for i := 0; i < 3; i++ {
		limiter.AllowAt("/gs/freeze", base.Add(time.Duration(i+1)*time.Millisecond))
	}

	stats := limiter.Snapshot()
	if stats.Allowed != 1 {
		t.Fatalf("expected 1 allowed, got %d", stats.Allowed)
	}
	if stats.Dropped != 3 {
		t.Fatalf("expected 3 dropped, got %d", stats.Dropped)
	}
	if stats.DropsByKey["/gs/freeze"] != 3 {
		t.Fatalf("expected 3 drops on /gs/freeze, got %v", stats.DropsByKey)
	}

	top := limiter.TopDrops(5)
	if len(top) != 1 || top[0] != "/gs/freeze" {
		t.Fatalf("expected /gs/freeze as top drop key, got %v", top)
	}
}

func TestLimiterDisabledAllowsEverything(t *testing.T) {
	limiter := ratelimit.New(0)
	base := time.Now()
	for i := 0; i < 100; i++ {
		if !limiter.AllowAt("/ch/01", base) {
			t.Fatal("disabled limiter must never drop")
		}
	}
	if limiter.Dropped() != 0 {
		t.Fatalf("expected zero drops, got %d", limiter.Dropped())
	}
}
