package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
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

func (c *Client) call(method string, req any, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Start requests the daemon to start monitoring.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop monitoring.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Violations returns the running daemon's violation log.
func (c *Client) Violations() (*ViolationsResponse, error) {
	var resp ViolationsResponse
	if err := c.call("Violations", ViolationsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns persisted entries, optionally for one session.
func (c *Client) History(sessionID string) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sessions lists persisted sessions.
func (c *Client) Sessions() (*SessionsResponse, error) {
	var resp SessionsResponse
	if err := c.call("Sessions", SessionsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportSignal reports a host-observed value for a signal.
func (c *Client) ReportSignal(signal, value string) (*ReportSignalResponse, error) {
	var resp ReportSignalResponse
	if err := c.call("ReportSignal", ReportSignalRequest{Signal: signal, Value: value}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportCapture reports the outcome of a screen capture attempt.
func (c *Client) ReportCapture(shared bool, surface string) (*ReportCaptureResponse, error) {
	var resp ReportCaptureResponse
	if err := c.call("ReportCapture", ReportCaptureRequest{Shared: shared, Surface: surface}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportCaptureEnded reports that the capture track ended.
func (c *Client) ReportCaptureEnded() (*ReportCaptureResponse, error) {
	var resp ReportCaptureResponse
	if err := c.call("ReportCaptureEnded", ReportCaptureEndedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportAudioFrame sends one frame of frequency-bin levels.
func (c *Client) ReportAudioFrame(bins []float64) (*ReportAudioFrameResponse, error) {
	var resp ReportAudioFrameResponse
	if err := c.call("ReportAudioFrame", ReportAudioFrameRequest{Bins: bins}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Acknowledge reports a click on the prompt button for kind. An empty kind
// acknowledges the active violation; a zero seq answers whichever prompt is open.
func (c *Client) Acknowledge(kind string, seq int64) (*AcknowledgeResponse, error) {
	var resp AcknowledgeResponse
	if err := c.call("Acknowledge", AcknowledgeRequest{Kind: kind, Seq: seq}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Requests lists pending host requests, removing them when drain is set.
func (c *Client) Requests(drain bool) (*RequestsResponse, error) {
	var resp RequestsResponse
	if err := c.call("Requests", RequestsRequest{Drain: drain}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
