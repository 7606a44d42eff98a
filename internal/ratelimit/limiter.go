// Package ratelimit throttles outbound OSC traffic per rate-limit key.
// Each key gets an independent minimum-interval bucket; sends that arrive
// faster than the interval are dropped, not queued, because a newer value
// for the same control supersedes the old one anyway.
package ratelimit

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxBuckets bounds the key map. Past the cap, unknown keys share a single
// overflow bucket so a flood of unique addresses cannot grow memory.
const maxBuckets = 4096

const overflowKey = "\x00overflow"

// Interval converts a messages-per-second ceiling into the minimum spacing
// between sends on one key, truncated to whole milliseconds.
func Interval(maxPerSecond int) time.Duration {
	if maxPerSecond <= 0 {
		return 0
	}
	return time.Duration(1000/maxPerSecond) * time.Millisecond
}

// Limiter enforces a per-key minimum interval between sends.
type Limiter struct {
	interval time.Duration

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	dropped map[string]uint64

	totalAllowed uint64
	totalDropped uint64
}

// New builds a limiter from a messages-per-second ceiling. A ceiling of
// zero or below disables limiting.
func New(maxPerSecond int) *Limiter {
	return &Limiter{
		interval: Interval(maxPerSecond),
		buckets:  make(map[string]*rate.Limiter),
		dropped:  make(map[string]uint64),
	}
}

// Interval reports the enforced spacing between sends on one key.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Allow reports whether a send on key may go out now.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit timestamp.
func (l *Limiter) AllowAt(key string, at time.Time) bool {
	if l.interval <= 0 {
		l.mu.Lock()
		l.totalAllowed++
		l.mu.Unlock()
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			key = overflowKey
			bucket = l.buckets[key]
		}
		if bucket == nil {
			bucket = rate.NewLimiter(rate.Every(l.interval), 1)
			l.buckets[key] = bucket
		}
	}

	if !bucket.AllowN(at, 1) {
		l.dropped[key]++
		l.totalDropped++
		return false
	}
	l.totalAllowed++
	return true
}

// Stats is a point-in-time view of limiter activity.
type Stats struct {
	Allowed    uint64            `json:"allowed"`
	Dropped    uint64            `json:"dropped"`
	DropsByKey map[string]uint64 `json:"drops_by_key,omitempty"`
}

// Snapshot copies the current counters.
func (l *Limiter) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{Allowed: l.totalAllowed, Dropped: l.totalDropped}
	if len(l.dropped) > 0 {
		stats.DropsByKey = make(map[string]uint64, len(l.dropped))
		for key, count := range l.dropped {
			stats.DropsByKey[key] = count
		}
	}
	return stats
}

// Dropped reports the total number of dropped sends.
func (l *Limiter) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalDropped
}

// TopDrops returns the keys with the most drops, busiest first, capped at n.
func (l *Limiter) TopDrops(n int) []string {
	l.mu.Lock()
	keys := make([]string, 0, len(l.dropped))
	for key := range l.dropped {
		keys = append(keys, key)
	}
	counts := make(map[string]uint64, len(l.dropped))
	for key, count := range l.dropped {
		counts[key] = count
	}
	l.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
