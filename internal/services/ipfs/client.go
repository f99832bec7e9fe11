package ipfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"nftpin/internal/services"
)

const (
	defaultAPIURL      = "http://127.0.0.1:5001"
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBody       = 4096
	userAgent          = "nftpin/0.1.0"
)

// APIError is a non-2xx reply from the Kubo RPC API.
type APIError struct {
	Command    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kubo %s: http %d: %s", e.Command, e.StatusCode, e.Message)
}

// NotPinned reports whether Kubo rejected the call because the CID is not
// pinned recursively.
func (e *APIError) NotPinned() bool {
	return strings.Contains(strings.ToLower(e.Message), "not pinned")
}

func isNotPinned(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotPinned()
}

type kuboClient struct {
	base       string
	httpClient *http.Client
}

func newKuboClient(apiURL string, httpClient *http.Client) *kuboClient {
	base := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if base == "" {
		base = defaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &kuboClient{base: base, httpClient: httpClient}
}

// call POSTs /api/v0/<command> and returns the response body.
func (c *kuboClient) call(ctx context.Context, command string, args url.Values) ([]byte, error) {
	endpoint := c.base + "/api/v0/" + command
	if len(args) > 0 {
		endpoint += "?" + args.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ipfs", command, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "ipfs", command, "kubo unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := strings.TrimSpace(string(body))
		if parsed := gjson.GetBytes(body, "Message"); parsed.Exists() {
			message = parsed.String()
		}
		return nil, &APIError{Command: command, StatusCode: resp.StatusCode, Message: message}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ipfs", command, "read response", err)
	}
	return body, nil
}

func (c *kuboClient) pinAdd(ctx context.Context, cid string) error {
	body, err := c.call(ctx, "pin/add", url.Values{"arg": {cid}, "recursive": {"true"}})
	if err != nil {
		return err
	}
	for _, pinned := range gjson.GetBytes(body, "Pins").Array() {
		if pinned.String() == cid {
			return nil
		}
	}
	return services.Wrap(services.ErrExternalService, "ipfs", "pin/add", fmt.Sprintf("kubo did not confirm %s", cid), nil)
}

// pinRm treats a CID that is already unpinned as removed.
func (c *kuboClient) pinRm(ctx context.Context, cid string) error {
	_, err := c.call(ctx, "pin/rm", url.Values{"arg": {cid}, "recursive": {"true"}})
	if isNotPinned(err) {
		return nil
	}
	return err
}

// isPinned asks Kubo whether cid is pinned recursively.
func (c *kuboClient) isPinned(ctx context.Context, cid string) (bool, error) {
	body, err := c.call(ctx, "pin/ls", url.Values{"arg": {cid}, "type": {"recursive"}})
	if err != nil {
		if isNotPinned(err) {
			return false, nil
		}
		return false, err
	}
	_, ok := gjson.GetBytes(body, "Keys").Map()[cid]
	return ok, nil
}

// recursivePins lists every CID pinned recursively on the node.
func (c *kuboClient) recursivePins(ctx context.Context) (map[string]struct{}, error) {
	body, err := c.call(ctx, "pin/ls", url.Values{"type": {"recursive"}})
	if err != nil {
		return nil, err
	}
	pins := make(map[string]struct{})
	gjson.GetBytes(body, "Keys").ForEach(func(key, _ gjson.Result) bool {
		pins[key.String()] = struct{}{}
		return true
	})
	return pins, nil
}

// Version asks the Kubo node at apiURL for its version string.
func Version(ctx context.Context, apiURL string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return newKuboClient(apiURL, &http.Client{Timeout: timeout}).version(ctx)
}

func (c *kuboClient) version(ctx context.Context) (string, error) {
	body, err := c.call(ctx, "version", nil)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "Version").String(), nil
}
