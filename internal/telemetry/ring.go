package telemetry

import (
	"sync"

	"grainbridge/internal/oscmsg"
)

// scanRing is a bounded append-only buffer of scan samples. Once capacity
// is reached the oldest sample is evicted for every new one, so memory
// stays flat no matter how long the engine streams.
type scanRing struct {
	mu       sync.Mutex
	capacity int
	samples  []oscmsg.ScanSample
	nextSeq  uint64
}

func newScanRing(capacity int) *scanRing {
	if capacity <= 0 {
		capacity = 12000
	}
	return &scanRing{capacity: capacity}
}

// add appends a sample and returns its sequence number.
func (r *scanRing) add(s oscmsg.ScanSample) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	if len(r.samples) == r.capacity {
		copy(r.samples, r.samples[1:])
		r.samples = r.samples[:r.capacity-1]
	}
	r.samples = append(r.samples, s)
	return r.nextSeq
}

// lastSeq reports the sequence number of the most recent sample.
func (r *scanRing) lastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextSeq
}

// countSince reports how many buffered samples arrived after seq.
func (r *scanRing) countSince(seq uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nextSeq <= seq {
		return 0
	}
	n := int(r.nextSeq - seq)
	if n > len(r.samples) {
		n = len(r.samples)
	}
	return n
}

// since returns copies of all buffered samples that arrived after seq.
// Samples evicted from the ring in the meantime are gone; callers sizing
// their window under the ring capacity never observe that.
func (r *scanRing) since(seq uint64) []oscmsg.ScanSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nextSeq <= seq {
		return nil
	}
	n := int(r.nextSeq - seq)
	if n > len(r.samples) {
		n = len(r.samples)
	}
	out := make([]oscmsg.ScanSample, n)
	copy(out, r.samples[len(r.samples)-n:])
	return out
}

// latest returns copies of the most recent limit samples, oldest first.
func (r *scanRing) latest(limit int) []oscmsg.ScanSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.samples) {
		limit = len(r.samples)
	}
	if limit == 0 {
		return nil
	}
	out := make([]oscmsg.ScanSample, limit)
	copy(out, r.samples[len(r.samples)-limit:])
	return out
}

func (r *scanRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
