package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const contentType = "text/plain;charset=utf-8"

// ErrNotConfigured is returned when no webhook URL is set.
var ErrNotConfigured = errors.New("webhook url not configured")

// Error is a failed delivery, flattened into one readable message.
type Error struct {
	Action Action
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("webhook %s failed: %s", e.Action, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

type Client struct {
	HTTPClient *http.Client
}

// NewClient creates a webhook client. A zero timeout means 15s.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{HTTPClient: &http.Client{Timeout: timeout}}
}

// Send posts req to url and returns the webhook's answer. HTTP failures and
// answers whose status is not "success" are both errors.
func (c *Client) Send(ctx context.Context, url string, req Request) (*Response, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Action: req.Action, Msg: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Action: req.Action, Msg: err.Error(), Err: err}
	}
	// text/plain keeps Apps Script deployments free of CORS preflight
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Action: req.Action, Msg: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Action: req.Action, Msg: fmt.Sprintf("status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Action: req.Action, Msg: "read response", Err: err}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{Action: req.Action, Msg: "malformed response", Err: err}
	}
	if out.Status != StatusSuccess {
		return &out, &Error{Action: req.Action, Msg: "webhook returned an error: " + out.Message}
	}
	return &out, nil
}
