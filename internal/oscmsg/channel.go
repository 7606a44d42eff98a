package oscmsg

import "fmt"

// ClampChannel forces a channel number into [1, channelCount]. Out-of-range
// channels are clamped rather than rejected so sloppy callers still land on
// a real voice.
func ClampChannel(channel, channelCount int) int {
	if channelCount < 1 {
		channelCount = 1
	}
	if channel < 1 {
		return 1
	}
	if channel > channelCount {
		return channelCount
	}
	return channel
}

// ChannelAddress formats the per-channel address "<prefix>/<NN>" with a
// two-digit zero-padded channel number, clamping first. It returns the
// address and the effective channel used.
func ChannelAddress(prefix string, channel, channelCount int) (string, int) {
	effective := ClampChannel(channel, channelCount)
	return fmt.Sprintf("%s/%02d", prefix, effective), effective
}

// ChannelRequest builds the command for a single normalized channel value.
// The value is clamped to [0,1] to match the engine's normalized parameter
// range, and the request is keyed by its own address so per-channel rate
// limiting falls out naturally.
func ChannelRequest(prefix string, channel, channelCount int, value float64) CommandRequest {
	addr, _ := ChannelAddress(prefix, channel, channelCount)
	return CommandRequest{
		Address: addr,
		Args:    []Arg{Float(float32(Clamp01(value)))},
	}
}

// Clamp01 forces v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
