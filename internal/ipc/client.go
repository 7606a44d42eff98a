package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"grainbridge/internal/oscmsg"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to bring its components up.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Grainbridge.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to tear its components down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Grainbridge.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Grainbridge.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EngineStart launches the engine process.
func (c *Client) EngineStart() (*EngineStartResponse, error) {
	var resp EngineStartResponse
	if err := c.client.Call("Grainbridge.EngineStart", EngineStartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EngineStop stops the engine process.
func (c *Client) EngineStop(reason string) (*EngineStopResponse, error) {
	var resp EngineStopResponse
	if err := c.client.Call("Grainbridge.EngineStop", EngineStopRequest{Reason: reason}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EngineRestart stops and relaunches the engine process.
func (c *Client) EngineRestart() (*EngineRestartResponse, error) {
	var resp EngineRestartResponse
	if err := c.client.Call("Grainbridge.EngineRestart", EngineRestartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EngineStatus retrieves the engine state.
func (c *Client) EngineStatus() (*EngineStatusResponse, error) {
	var resp EngineStatusResponse
	if err := c.client.Call("Grainbridge.EngineStatus", EngineStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send relays one OSC command through the daemon.
func (c *Client) Send(command oscmsg.CommandRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.client.Call("Grainbridge.Send", SendRequest{Command: command}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetChannel sets one control channel value.
func (c *Client) SetChannel(channel int, value float64) (*SetChannelResponse, error) {
	var resp SetChannelResponse
	req := SetChannelRequest{Channel: channel, Value: value}
	if err := c.client.Call("Grainbridge.SetChannel", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetChannels sets several channel values in ascending channel order.
func (c *Client) SetChannels(values map[int]float64) (*SetChannelsResponse, error) {
	var resp SetChannelsResponse
	req := SetChannelsRequest{Values: values}
	if err := c.client.Call("Grainbridge.SetChannels", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Capture collects telemetry for a window of time.
func (c *Client) Capture(req CaptureRequest) (*CaptureResponse, error) {
	var resp CaptureResponse
	if err := c.client.Call("Grainbridge.Capture", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PresetSave stores a named snapshot of channel values.
func (c *Client) PresetSave(name string, channels map[int]float64) (*PresetSaveResponse, error) {
	var resp PresetSaveResponse
	req := PresetSaveRequest{Name: name, Channels: channels}
	if err := c.client.Call("Grainbridge.PresetSave", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PresetApply replays a stored preset through the relay.
func (c *Client) PresetApply(name string) (*PresetApplyResponse, error) {
	var resp PresetApplyResponse
	if err := c.client.Call("Grainbridge.PresetApply", PresetApplyRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PresetList lists stored presets.
func (c *Client) PresetList() (*PresetListResponse, error) {
	var resp PresetListResponse
	if err := c.client.Call("Grainbridge.PresetList", PresetListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PresetDelete removes a stored preset by name.
func (c *Client) PresetDelete(name string) (*PresetDeleteResponse, error) {
	var resp PresetDeleteResponse
	if err := c.client.Call("Grainbridge.PresetDelete", PresetDeleteRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns buffered log events from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Grainbridge.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Grainbridge.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
