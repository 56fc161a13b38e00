// Package client fetches raw sensor readings from the device gateway.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/luki/airdash/internal/reading"
)

const dataPath = "/data"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Text string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: status %d %s", e.Code, e.Text)
}

type Config struct {
	BaseURL  string
	DeviceID string
	Timeout  time.Duration
}

type Client struct {
	http     *resty.Client
	deviceID string
	endpoint string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("client base url is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = reading.DefaultDeviceID
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:     rc,
		deviceID: deviceID,
		endpoint: baseURL + dataPath,
	}, nil
}

// Fetch requests the current reading for the configured device. The
// request is bound to ctx; a cancelled ctx yields an error for which
// errors.Is(err, context.Canceled) holds.
func (c *Client) Fetch(ctx context.Context) (reading.Raw, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("device_id", c.deviceID).
		Get(dataPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return reading.Raw{}, fmt.Errorf("request %s: %w", c.endpoint, ctxErr)
		}
		return reading.Raw{}, fmt.Errorf("request %s: %w", c.endpoint, err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return reading.Raw{}, &StatusError{Code: code, Text: http.StatusText(code)}
	}

	raw, err := reading.Decode(resp.Body())
	if err != nil {
		return reading.Raw{}, fmt.Errorf("%s: %w", c.endpoint, err)
	}
	return raw, nil
}

// Endpoint returns the URL polled by Fetch, without the query string.
func (c *Client) Endpoint() string {
	return c.endpoint
}
