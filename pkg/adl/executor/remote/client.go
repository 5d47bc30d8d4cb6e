package remote

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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
)

// ErrRemoteStep is returned when the remote executor ran the node and it
// failed.
var ErrRemoteStep = errors.New("remote step failed")

// Client is an executor.Backend that forwards each node to a remote
// executor service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	oauth      *clientcredentials.Config
	timeout    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithOAuth2 authenticates every request with a client-credentials token.
// Tokens are fetched through the configured HTTP client and cached until
// they expire.
func WithOAuth2(cfg clientcredentials.Config) ClientOption {
	return func(c *Client) {
		c.oauth = &cfg
	}
}

// WithTimeout bounds each request. Zero leaves requests bounded only by the
// context and the node timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client for the executor service at endpoint, e.g.
// "http://executor:8080".
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.oauth != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		c.httpClient = c.oauth.Client(ctx)
	}
	return c
}

// Endpoint returns the service base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Execute implements executor.Backend.
func (c *Client) Execute(ctx context.Context, req executor.Request) (any, error) {
	body, err := Encode(req)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+ExecutePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", executor.ErrUnreachable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", executor.ErrUnreachable, c.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", executor.ErrUnreachable, err)
	}
	if len(data) > MaxResponseBytes {
		return nil, fmt.Errorf("remote response exceeds %d bytes", MaxResponseBytes)
	}

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, fmt.Errorf("%w: rejected by %s", executor.ErrRequestTooLarge, c.endpoint)
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: %s returned %s", executor.ErrUnreachable, c.endpoint, resp.Status)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode remote response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote executor returned %s: %s", resp.Status, out.Error)
	}
	if out.Error != "" {
		return nil, remoteError(out)
	}
	return out.Output, nil
}

// Encode serializes req and enforces MaxRequestBytes.
func Encode(req executor.Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if len(body) > MaxRequestBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", executor.ErrRequestTooLarge, len(body), MaxRequestBytes)
	}
	return body, nil
}

// remoteError rebuilds a failure reported by the service so that Classify
// yields the same cause on both sides.
func remoteError(r response) error {
	switch r.Cause {
	case executor.CauseTimeout:
		return fmt.Errorf("%w: remote: %s", executor.ErrTimeout, r.Error)
	case executor.CauseUnreachable:
		return fmt.Errorf("%w: remote: %s", executor.ErrUnreachable, r.Error)
	case executor.CauseRequestTooLarge:
		return fmt.Errorf("%w: remote: %s", executor.ErrRequestTooLarge, r.Error)
	default:
		return fmt.Errorf("%w: %s", ErrRemoteStep, r.Error)
	}
}
