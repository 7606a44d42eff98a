package supervisor

import (
	"math"
	"time"
)

// Clock abstracts timer scheduling so tests can drive the watchdog with a
// virtual clock instead of real sleeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RestartDelay returns the wait before the nth consecutive crash restart:
// min(maxDelay, baseDelay * 2^(n-1)). Attempts below 1 are treated as 1.
func RestartDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(baseDelay) * math.Pow(2, float64(attempt-1))
	if scaled >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(scaled)
}
