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

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns pin records optionally filtered by statuses.
func (c *Client) List(statuses []string) (*ListResponse, error) {
	var resp ListResponse
	if err := c.call("List", ListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetAutoPin switches auto-pin on or off.
func (c *Client) SetAutoPin(enabled bool) (*SetAutoPinResponse, error) {
	var resp SetAutoPinResponse
	if err := c.call("SetAutoPin", SetAutoPinRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AutoPinStatus reports whether auto-pin is enabled.
func (c *Client) AutoPinStatus() (*SetAutoPinResponse, error) {
	var resp SetAutoPinResponse
	if err := c.call("AutoPinStatus", SetAutoPinRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Restore asks the daemon to reconcile against the inventory again.
func (c *Client) Restore() error {
	var resp RestoreResponse
	return c.call("Restore", RestoreRequest{}, &resp)
}

// Reset disables auto-pin and removes every pin.
func (c *Client) Reset() (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.call("Reset", ResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pin pins one token immediately.
func (c *Client) Pin(token Token) (*OperationResponse, error) {
	return c.operation("Pin", token)
}

// Unpin unpins one token immediately.
func (c *Client) Unpin(token Token) (*OperationResponse, error) {
	return c.operation("Unpin", token)
}

// Validate checks one token's pins immediately.
func (c *Client) Validate(token Token) (*OperationResponse, error) {
	return c.operation("Validate", token)
}

func (c *Client) operation(method string, token Token) (*OperationResponse, error) {
	var resp OperationResponse
	if err := c.call(method, TokenRequest{Token: token}, &resp); err != nil {
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
