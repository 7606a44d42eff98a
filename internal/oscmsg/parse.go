package oscmsg

import (
	"strings"
	"time"
)

const (
	// maxHelloArgs caps how many hello arguments are decoded.
	maxHelloArgs = 32
	// maxGrainIndices caps how many grain indices one scan sample carries.
	maxGrainIndices = 2048
)

// HelloSample is the engine's startup announcement: a flat list of
// arguments, most of them key=value strings describing the runtime.
type HelloSample struct {
	Timestamp time.Time `json:"ts"`
	Address   string    `json:"address"`
	Args      []string  `json:"args"`
}

// Lookup splits key=value arguments into a map. Arguments without '=' are
// skipped; later duplicates win.
func (h HelloSample) Lookup() map[string]string {
	out := make(map[string]string, len(h.Args))
	for _, arg := range h.Args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

// ScanSample is one periodic telemetry frame from the engine. The three
// head positions are always clamped to [0,1] before storage.
type ScanSample struct {
	Timestamp       time.Time `json:"ts"`
	Playhead        float64   `json:"playhead"`
	ScanHead        float64   `json:"scan_head"`
	ScanRange       float64   `json:"scan_range"`
	SoundFileFrames int64     `json:"sound_file_frames,omitempty"`
	GrainIndices    []int64   `json:"grain_indices,omitempty"`
	GrainPositions  []float64 `json:"grain_positions,omitempty"`
}

// ParseHello decodes a hello datagram's arguments. Every argument is
// normalized to its string form; at most maxHelloArgs are kept.
func ParseHello(address string, args []any, now time.Time) HelloSample {
	sample := HelloSample{Timestamp: now, Address: address}
	for _, arg := range args {
		if len(sample.Args) == maxHelloArgs {
			break
		}
		sample.Args = append(sample.Args, stringify(arg))
	}
	return sample
}

// ParseScan decodes a scan datagram's arguments. It returns false when the
// message has fewer than three parseable numeric arguments; telemetry is
// best-effort, so that case is a silent discard rather than an error.
//
// Layout: [playhead, scanHead, scanRange, optional frameCount, grain...].
// The fourth argument is treated as a total frame count only when it is
// greater than 1; otherwise it is read as the first grain index. Grain
// positions are normalized by the frame count when one is known, else the
// raw index is clamped into [0,1].
func ParseScan(args []any, now time.Time) (ScanSample, bool) {
	if len(args) < 3 {
		return ScanSample{}, false
	}
	heads := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, ok := toFloat64(args[i])
		if !ok {
			return ScanSample{}, false
		}
		heads[i] = Clamp01(v)
	}

	sample := ScanSample{
		Timestamp: now,
		Playhead:  heads[0],
		ScanHead:  heads[1],
		ScanRange: heads[2],
	}

	rest := args[3:]
	if len(rest) > 0 {
		if v, ok := toFloat64(rest[0]); ok && v > 1 {
			sample.SoundFileFrames = int64(v)
			rest = rest[1:]
		}
	}

	for _, arg := range rest {
		if len(sample.GrainIndices) == maxGrainIndices {
			break
		}
		v, ok := toFloat64(arg)
		if !ok || v < 0 {
			continue
		}
		index := int64(v)
		sample.GrainIndices = append(sample.GrainIndices, index)
		if sample.SoundFileFrames > 1 {
			sample.GrainPositions = append(sample.GrainPositions, Clamp01(float64(index)/float64(sample.SoundFileFrames)))
		} else {
			sample.GrainPositions = append(sample.GrainPositions, Clamp01(float64(index)))
		}
	}

	return sample, true
}
