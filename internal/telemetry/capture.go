package telemetry

import (
	"context"
	"time"

	"grainbridge/internal/oscmsg"
)

const capturePollInterval = 25 * time.Millisecond

// FieldSpan is the observed min/max of one normalized telemetry field.
type FieldSpan struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CaptureStats aggregates one capture window.
type CaptureStats struct {
	Count          int       `json:"count"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	RateHz         float64   `json:"rate_hz"`
	Playhead       FieldSpan `json:"playhead"`
	ScanHead       FieldSpan `json:"scan_head"`
	ScanRange      FieldSpan `json:"scan_range"`
	MaxGrains      int       `json:"max_grains"`
}

// Capture is the result of one CaptureWindow call.
type Capture struct {
	Samples []oscmsg.ScanSample `json:"samples"`
	Stats   CaptureStats        `json:"stats"`
}

// CaptureWindow collects scan samples arriving after the call and returns
// them with aggregate statistics. It polls until both the window duration
// has elapsed and minSamples have arrived, or until the timeout, whichever
// comes first; a timeout still returns whatever was captured. The effective
// deadline is never shorter than the window. Context cancellation returns
// the partial capture along with the context error.
func (l *Listener) CaptureWindow(ctx context.Context, window time.Duration, minSamples int, timeout time.Duration) (Capture, error) {
	if window <= 0 {
		window = time.Second
	}
	deadline := timeout
	if deadline < window {
		deadline = window
	}

	start := time.Now()
	startSeq := l.ring.lastSeq()

	ticker := time.NewTicker(capturePollInterval)
	defer ticker.Stop()

	for {
		elapsed := time.Since(start)
		if elapsed >= window && l.ring.countSince(startSeq) >= minSamples {
			break
		}
		if elapsed >= deadline {
			break
		}
		select {
		case <-ctx.Done():
			return l.captureResult(startSeq, time.Since(start)), ctx.Err()
		case <-ticker.C:
		}
	}
	return l.captureResult(startSeq, time.Since(start)), nil
}

func (l *Listener) captureResult(startSeq uint64, elapsed time.Duration) Capture {
	samples := l.ring.since(startSeq)
	return Capture{Samples: samples, Stats: computeStats(samples, elapsed)}
}

func computeStats(samples []oscmsg.ScanSample, elapsed time.Duration) CaptureStats {
	stats := CaptureStats{
		Count:          len(samples),
		ElapsedSeconds: elapsed.Seconds(),
	}
	if len(samples) == 0 {
		return stats
	}
	if stats.ElapsedSeconds > 0 {
		stats.RateHz = float64(len(samples)) / stats.ElapsedSeconds
	}
	stats.Playhead = spanOf(samples, func(s oscmsg.ScanSample) float64 { return s.Playhead })
	stats.ScanHead = spanOf(samples, func(s oscmsg.ScanSample) float64 { return s.ScanHead })
	stats.ScanRange = spanOf(samples, func(s oscmsg.ScanSample) float64 { return s.ScanRange })
	for _, s := range samples {
		if n := len(s.GrainIndices); n > stats.MaxGrains {
			stats.MaxGrains = n
		}
	}
	return stats
}

func spanOf(samples []oscmsg.ScanSample, field func(oscmsg.ScanSample) float64) FieldSpan {
	span := FieldSpan{Min: field(samples[0]), Max: field(samples[0])}
	for _, s := range samples[1:] {
		v := field(s)
		if v < span.Min {
			span.Min = v
		}
		if v > span.Max {
			span.Max = v
		}
	}
	return span
}
