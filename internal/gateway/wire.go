package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"grainbridge/internal/oscmsg"
	"grainbridge/internal/relay"
)

// Message types accepted on the duplex channel.
const (
	TypePing        = "ping"
	TypeChannelSet  = "channel:set"
	TypeChannelsSet = "channels:set"
	TypeOSCSend     = "osc:send"
	TypeOSCBatch    = "osc:batch"
)

// Message types emitted on the duplex channel.
const (
	TypeBridgeHello   = "bridge:hello"
	TypeBridgeAck     = "bridge:ack"
	TypeBridgeError   = "bridge:error"
	TypeTelemetryScan = "telemetry:scan"
	TypePong          = "pong"
)

// Envelope frames every message on the duplex channel in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// channelSet is one channel assignment. It is the payload for channel:set
// and POST /api/channel, and the element type of batch requests.
type channelSet struct {
	Channel int     `json:"channel"`
	Value   float64 `json:"value"`
}

// channelBatchRequest is the payload for channels:set and POST /api/channels.
type channelBatchRequest struct {
	Channels []channelSet `json:"channels"`
}

// oscBatchRequest is the payload for osc:batch and POST /api/osc/batch.
type oscBatchRequest struct {
	Requests []oscmsg.CommandRequest `json:"requests"`
}

// helloPayload greets a client when its duplex channel opens.
type helloPayload struct {
	ClientID       string    `json:"client_id"`
	ServerTime     time.Time `json:"server_time"`
	EngineState    string    `json:"engine_state"`
	RelayReady     bool      `json:"relay_ready"`
	TelemetryReady bool      `json:"telemetry_ready"`
}

// pongPayload answers a ping with the current server time.
type pongPayload struct {
	ServerTime time.Time `json:"server_time"`
}

// ackPayload mirrors the relay outcome of a single send back to the client
// that requested it. For names the message type being acknowledged.
type ackPayload struct {
	For    string       `json:"for"`
	Result relay.Result `json:"result"`
}

// batchAckPayload mirrors per-item relay outcomes for batch requests.
type batchAckPayload struct {
	For     string         `json:"for"`
	Results []relay.Result `json:"results"`
	Sent    int            `json:"sent"`
	Dropped int            `json:"dropped"`
	Failed  int            `json:"failed"`
}

// errorPayload reports a rejected duplex message. Issues lists what was
// wrong; the connection stays open.
type errorPayload struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// marshalEnvelope wraps payload in an Envelope and returns the wire bytes.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

var errMissingPayload = errors.New("missing payload")

// decodePayload unmarshals a payload into v, treating an absent payload as
// an error so handlers report it instead of acting on zero values.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errMissingPayload
	}
	return json.Unmarshal(raw, v)
}
